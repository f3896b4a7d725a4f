package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bloodlink/pkg/platform/listqueue"
)

// Parked is notification work waiting for redelivery: either messages the
// sink did not accept, or a payload whose fan-out never completed.
type Parked struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages,omitempty"`
	Payload       *Envelope `json:"payload,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	ParkedAt      time.Time `json:"parked_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// ParkMessages builds an item that redelivers batch as-is.
func ParkMessages(batch []Message, cause error, now time.Time) Parked {
	return newParked(cause, now, func(p *Parked) { p.Messages = batch })
}

// ParkPayload builds an item that runs the whole fan-out for p again.
func ParkPayload(p Payload, requestID string, cause error, now time.Time) Parked {
	env := Wrap(p)
	return newParked(cause, now, func(item *Parked) {
		item.Payload = &env
		item.RequestID = requestID
	})
}

func newParked(cause error, now time.Time, fill func(*Parked)) Parked {
	p := Parked{ID: uuid.NewString(), ParkedAt: now, NextAttemptAt: now}
	if cause != nil {
		p.LastError = cause.Error()
	}
	fill(&p)
	return p
}

// Envelope is the storable form of a Payload. Exactly one variant is set.
type Envelope struct {
	Kind      Kind       `json:"kind"`
	Created   *Created   `json:"created,omitempty"`
	Accepted  *Accepted  `json:"accepted,omitempty"`
	Completed *Completed `json:"completed,omitempty"`
	Cancelled *Cancelled `json:"cancelled,omitempty"`
	Suggested *Suggested `json:"suggested,omitempty"`
}

func Wrap(p Payload) Envelope {
	env := Envelope{Kind: p.Kind()}
	switch v := p.(type) {
	case Created:
		env.Created = &v
	case Accepted:
		env.Accepted = &v
	case Completed:
		env.Completed = &v
	case Cancelled:
		env.Cancelled = &v
	case Suggested:
		env.Suggested = &v
	}
	return env
}

// Payload returns the wrapped variant.
func (e Envelope) Payload() (Payload, error) {
	switch {
	case e.Kind == KindCreated && e.Created != nil:
		return *e.Created, nil
	case e.Kind == KindAccepted && e.Accepted != nil:
		return *e.Accepted, nil
	case e.Kind == KindCompleted && e.Completed != nil:
		return *e.Completed, nil
	case e.Kind == KindCancelled && e.Cancelled != nil:
		return *e.Cancelled, nil
	case e.Kind == KindSuggested && e.Suggested != nil:
		return *e.Suggested, nil
	}
	return nil, fmt.Errorf("envelope %q carries no matching payload", e.Kind)
}

// RedeliveryQueue holds parked work plus a dead-letter list.
type RedeliveryQueue = listqueue.Queue[Parked]

// MemoryRedeliveryQueue is the process-local RedeliveryQueue.
type MemoryRedeliveryQueue = listqueue.Memory[Parked]

const redeliveryPrefix = "bloodlink:notification:redelivery"

func NewMemoryRedeliveryQueue() *MemoryRedeliveryQueue {
	return listqueue.NewMemory[Parked]()
}

// NewRedisRedeliveryQueue keeps parked work across restarts and instances.
func NewRedisRedeliveryQueue(client *redis.Client) *listqueue.Redis[Parked] {
	return listqueue.NewRedis[Parked](client, redeliveryPrefix)
}

const parkTimeout = 5 * time.Second

// enqueueParked survives the caller's cancellation so shutdown can still park.
func enqueueParked(ctx context.Context, q RedeliveryQueue, item Parked) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), parkTimeout)
	defer cancel()
	if err := q.Enqueue(pctx, item); err != nil {
		return fmt.Errorf("park notification work: %w", err)
	}
	return nil
}

const (
	defaultRedeliveryInterval = 15 * time.Second
	defaultRedeliveryAttempts = 20
	defaultRedeliveryBatch    = 20
	defaultRedeliveryBackoff  = 30 * time.Second
	defaultRedeliveryCeiling  = 30 * time.Minute
)

// Redeliverer retries parked work with exponential backoff. Parked messages
// get one sink call per pass; parked payloads run the full fan-out again, so
// redelivery is at-least-once.
type Redeliverer struct {
	queue        RedeliveryQueue
	orchestrator *Orchestrator
	interval     time.Duration
	maxAttempts  int
	batchSize    int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
}

type RedelivererOption func(*Redeliverer)

func WithRedeliveryInterval(d time.Duration) RedelivererOption {
	return func(r *Redeliverer) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRedeliveryAttempts(n int) RedelivererOption {
	return func(r *Redeliverer) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithRedeliveryBatchSize(n int) RedelivererOption {
	return func(r *Redeliverer) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRedeliveryBackoff sets the delay after the first failure and its ceiling.
func WithRedeliveryBackoff(base, ceiling time.Duration) RedelivererOption {
	return func(r *Redeliverer) {
		if base > 0 {
			r.baseBackoff = base
		}
		if ceiling > 0 {
			r.maxBackoff = ceiling
		}
	}
}

func WithRedeliveryLogger(logger *slog.Logger) RedelivererOption {
	return func(r *Redeliverer) { r.logger = logger }
}

func WithRedeliveryMetrics(m *Metrics) RedelivererOption {
	return func(r *Redeliverer) { r.metrics = m }
}

func WithRedeliveryClock(now func() time.Time) RedelivererOption {
	return func(r *Redeliverer) { r.now = now }
}

func NewRedeliverer(queue RedeliveryQueue, orchestrator *Orchestrator, opts ...RedelivererOption) *Redeliverer {
	r := &Redeliverer{
		queue:        queue,
		orchestrator: orchestrator,
		interval:     defaultRedeliveryInterval,
		maxAttempts:  defaultRedeliveryAttempts,
		batchSize:    defaultRedeliveryBatch,
		baseBackoff:  defaultRedeliveryBackoff,
		maxBackoff:   defaultRedeliveryCeiling,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.maxBackoff = max(r.maxBackoff, r.baseBackoff)
	return r
}

// Run redelivers every interval until ctx is done.
func (r *Redeliverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "notification redelivery pass failed", "error", err)
			}
		}
	}
}

// RunOnce takes at most one batch of parked items. Items not yet due go back
// untouched; failures are rescheduled and re-enqueued after the pass, so one
// pass never retries the same item twice. It returns how many items it tried.
func (r *Redeliverer) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	var (
		attempted int
		requeue   []Parked
	)
	defer func() {
		for _, item := range requeue {
			if err := enqueueParked(ctx, r.queue, item); err != nil {
				r.logger.ErrorContext(ctx, "failed to requeue parked notification work",
					"parked_id", item.ID,
					"error", err,
				)
			}
		}
	}()

	for taken := 0; taken < r.batchSize; taken++ {
		item, ok, err := r.queue.Dequeue(ctx)
		if err != nil {
			return attempted, err
		}
		if !ok {
			return attempted, nil
		}
		if item.NextAttemptAt.After(now) {
			requeue = append(requeue, item)
			continue
		}
		attempted++

		err = r.redeliver(ctx, item)
		if err == nil {
			r.metrics.incRedelivered("succeeded")
			continue
		}

		item.Attempts++
		item.LastError = err.Error()
		if item.Attempts >= r.maxAttempts || errors.Is(err, errMalformedParked) {
			r.metrics.incRedelivered("dead_lettered")
			r.logger.ErrorContext(ctx, "notification redelivery abandoned",
				"parked_id", item.ID,
				"attempts", item.Attempts,
				"messages", len(item.Messages),
				"error", err,
			)
			if dlErr := r.queue.DeadLetter(ctx, item); dlErr != nil {
				return attempted, dlErr
			}
			continue
		}
		item.NextAttemptAt = now.Add(r.backoff(item.Attempts))
		r.metrics.incRedelivered("retried")
		requeue = append(requeue, item)
	}
	return attempted, nil
}

var errMalformedParked = errors.New("parked item carries neither messages nor payload")

func (r *Redeliverer) redeliver(ctx context.Context, item Parked) error {
	if len(item.Messages) > 0 {
		return r.orchestrator.dispatcher.attempt(ctx, item.Messages)
	}
	if item.Payload == nil {
		return errMalformedParked
	}
	p, err := item.Payload.Payload()
	if err != nil {
		return errors.Join(errMalformedParked, err)
	}
	return r.orchestrator.process(ctx, p, item.RequestID)
}

func (r *Redeliverer) backoff(attempts int) time.Duration {
	d := r.baseBackoff
	for i := 1; i < attempts && d < r.maxBackoff; i++ {
		d *= 2
	}
	return min(d, r.maxBackoff)
}
