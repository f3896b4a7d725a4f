package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/requestcontext"
)

// BatchSize bounds both directory pages and sink writes.
const BatchSize = 100

const (
	defaultQueueSize      = 1024
	defaultWorkers        = 4
	defaultProcessTimeout = 30 * time.Second
	defaultDrainTimeout   = 10 * time.Second
)

// Directory is the user lookup the orchestrator needs for fan-out.
type Directory interface {
	ListStaff(ctx context.Context) ([]*usermodels.User, error)
	ListMatchingDonors(ctx context.Context, bloodGroup id.BloodGroup, district string, after id.UserID, limit int) ([]*usermodels.User, error)
}

type job struct {
	payload   Payload
	requestID string
}

// Orchestrator turns payloads into messages off the request path. Handle
// only enqueues; workers started by Run resolve recipients and deliver.
type Orchestrator struct {
	directory  Directory
	dispatcher *Dispatcher
	queue      chan job

	workers        int
	batchSize      int
	processTimeout time.Duration
	drainTimeout   time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	redelivery     RedeliveryQueue
	now            func() time.Time
	newID          func() id.NotificationID
}

type Option func(*Orchestrator)

func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.queue = make(chan job, n)
		}
	}
}

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRedelivery parks payloads the orchestrator cannot fan out: a full
// queue, a failed fan-out, or work left over when draining times out.
func WithRedelivery(q RedeliveryQueue) Option {
	return func(o *Orchestrator) { o.redelivery = q }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(directory Directory, dispatcher *Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		directory:      directory,
		dispatcher:     dispatcher,
		queue:          make(chan job, defaultQueueSize),
		workers:        defaultWorkers,
		batchSize:      BatchSize,
		processTimeout: defaultProcessTimeout,
		drainTimeout:   defaultDrainTimeout,
		logger:         slog.Default(),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          id.NewNotificationID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle enqueues p and never blocks. When the queue is full p is parked for
// redelivery; it reports false only when p was dropped.
func (o *Orchestrator) Handle(ctx context.Context, p Payload) bool {
	j := job{payload: p, requestID: requestcontext.RequestID(ctx)}
	select {
	case o.queue <- j:
		o.metrics.incEnqueued(p.Kind())
		o.metrics.setQueueDepth(len(o.queue))
		return true
	default:
		return o.park(ctx, j, dropQueueFull, errors.New("notification queue full"))
	}
}

// park hands j to the redelivery queue, or drops it when there is none or
// the queue rejects it. It reports whether j was kept.
func (o *Orchestrator) park(ctx context.Context, j job, reason string, cause error) bool {
	attrs := []any{
		"kind", j.payload.Kind(),
		"donation_request_id", j.payload.Summary().ID.String(),
		"reason", reason,
		"error", cause,
	}
	if o.redelivery != nil {
		err := enqueueParked(ctx, o.redelivery, ParkPayload(j.payload, j.requestID, cause, o.now()))
		if err == nil {
			o.metrics.addParked(reason, 1)
			o.logger.WarnContext(ctx, "notification payload parked for redelivery", attrs...)
			return true
		}
		attrs = append(attrs, "park_error", err)
	}
	o.metrics.addDropped(reason, 1)
	o.logger.ErrorContext(ctx, "notification payload dropped", attrs...)
	return false
}

// Run processes payloads until ctx is done, then drains what is still queued
// for up to the drain timeout.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range o.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-o.queue:
					o.metrics.setQueueDepth(len(o.queue))
					o.processJob(ctx, j)
				}
			}
		}()
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.drainTimeout)
	defer cancel()
	for {
		select {
		case j := <-o.queue:
			if err := drainCtx.Err(); err != nil {
				o.park(drainCtx, j, dropShutdown, err)
				continue
			}
			o.processJob(drainCtx, j)
		default:
			return nil
		}
	}
}

func (o *Orchestrator) processJob(ctx context.Context, j job) {
	if err := o.process(ctx, j.payload, j.requestID); err != nil {
		o.logger.ErrorContext(ctx, "notification fan-out incomplete",
			"kind", j.payload.Kind(),
			"donation_request_id", j.payload.Summary().ID.String(),
			"request_id", j.requestID,
			"error", err,
		)
		o.park(ctx, j, dropResolve, err)
	}
}

// process runs Process under its own timeout. Shutdown must not abort a
// fan-out halfway through a batch.
func (o *Orchestrator) process(ctx context.Context, p Payload, requestID string) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.processTimeout)
	defer cancel()
	if requestID != "" {
		pctx = requestcontext.WithRequestID(pctx, requestID)
	}
	return o.Process(pctx, p)
}

// Process resolves every recipient of p and delivers the messages in batches.
// A failed batch or lookup does not stop the remaining ones; all failures are
// joined into the returned error.
func (o *Orchestrator) Process(ctx context.Context, p Payload) error {
	plan := PlanFor(p)
	req := p.Summary()
	now := o.now()
	b := &batcher{size: o.batchSize, deliver: func(batch []Message) error {
		return o.dispatcher.Deliver(ctx, batch)
	}}

	for _, r := range plan.Direct {
		b.add(Compose(p, r, o.newID(), now))
	}

	if plan.Staff {
		staff, err := o.directory.ListStaff(ctx)
		if err != nil {
			b.fail(fmt.Errorf("list staff: %w", err))
		}
		for _, u := range staff {
			if u.ID == req.RequesterID {
				continue
			}
			b.add(Compose(p, Recipient{UserID: u.ID, Audience: AudienceStaff}, o.newID(), now))
		}
	}

	if plan.MatchingDonors {
		if err := o.eachMatchingDonor(ctx, req, func(u *usermodels.User) {
			b.add(Compose(p, Recipient{UserID: u.ID, Audience: AudienceMatchingDonor}, o.newID(), now))
		}); err != nil {
			b.fail(err)
		}
	}

	b.flush()
	return errors.Join(b.errs...)
}

// eachMatchingDonor pages through the directory with a keyset cursor.
func (o *Orchestrator) eachMatchingDonor(ctx context.Context, req RequestSummary, fn func(*usermodels.User)) error {
	var after id.UserID
	for {
		page, err := o.directory.ListMatchingDonors(ctx, req.BloodGroup, req.District, after, o.batchSize)
		if err != nil {
			return fmt.Errorf("list matching donors after %s: %w", after.String(), err)
		}
		for _, u := range page {
			if u.ID != req.RequesterID {
				fn(u)
			}
		}
		if len(page) < o.batchSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

type batcher struct {
	size    int
	pending []Message
	deliver func([]Message) error
	errs    []error
}

func (b *batcher) add(m Message) {
	b.pending = append(b.pending, m)
	if len(b.pending) >= b.size {
		b.flush()
	}
}

func (b *batcher) flush() {
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil
	if err := b.deliver(batch); err != nil {
		b.fail(err)
	}
}

func (b *batcher) fail(err error) {
	b.errs = append(b.errs, err)
}
