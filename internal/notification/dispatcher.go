package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bloodlink/pkg/platform/circuit"
)

// Sink persists or publishes notification records. Implementations must
// accept a whole batch or fail it.
type Sink interface {
	Deliver(ctx context.Context, messages []Message) error
}

var ErrCircuitOpen = errors.New("notification sink circuit open")

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 100 * time.Millisecond
)

// Dispatcher delivers one batch at a time with exponential backoff behind a
// circuit breaker shared by every worker.
type Dispatcher struct {
	sink        Sink
	breaker     *circuit.Breaker
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
	metrics     *Metrics
	redelivery  RedeliveryQueue
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type DispatcherOption func(*Dispatcher)

func WithRetry(maxAttempts int, baseBackoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			d.baseBackoff = baseBackoff
		}
	}
}

func WithBreaker(b *circuit.Breaker) DispatcherOption {
	return func(d *Dispatcher) {
		if b != nil {
			d.breaker = b
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatcherRedelivery parks batches that cannot be delivered.
func WithDispatcherRedelivery(q RedeliveryQueue) DispatcherOption {
	return func(d *Dispatcher) { d.redelivery = q }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		breaker:     circuit.New("notification-sink"),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends batch to the sink, retrying with backoff. A batch that runs
// out of attempts, or that meets an open breaker, is parked for redelivery
// when a redelivery queue is configured and dropped otherwise. Deliver
// returns nil once the batch is either delivered or parked.
func (d *Dispatcher) Deliver(ctx context.Context, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err = d.attempt(ctx, batch)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return d.park(ctx, batch, dropCircuitOpen, err)
		}
		if attempt == d.maxAttempts {
			break
		}
		if serr := d.sleep(ctx, d.baseBackoff<<(attempt-1)); serr != nil {
			err = errors.Join(err, serr)
			break
		}
	}
	return d.park(ctx, batch, dropExhausted, err)
}

// attempt makes one sink call behind the breaker.
func (d *Dispatcher) attempt(ctx context.Context, batch []Message) error {
	if !d.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := d.sink.Deliver(ctx, batch)
	if err == nil {
		if _, change := d.breaker.RecordSuccess(); change.Closed {
			d.logger.InfoContext(ctx, "notification sink circuit closed")
			d.metrics.setBreakerOpen(false)
		}
		d.metrics.addDelivered(len(batch))
		return nil
	}
	d.metrics.incDeliveryFailures()
	if _, change := d.breaker.RecordFailure(); change.Opened {
		d.logger.WarnContext(ctx, "notification sink circuit opened", "error", err)
		d.metrics.setBreakerOpen(true)
	}
	return err
}

// park hands a failed batch to the redelivery queue. Without a queue, or when
// the queue rejects it, the batch is dropped and the cause returned.
func (d *Dispatcher) park(ctx context.Context, batch []Message, reason string, cause error) error {
	if d.redelivery != nil {
		perr := enqueueParked(ctx, d.redelivery, ParkMessages(batch, cause, d.now()))
		if perr == nil {
			d.metrics.addParked(reason, len(batch))
			d.logger.WarnContext(ctx, "notification batch parked for redelivery",
				"reason", reason,
				"messages", len(batch),
				"error", cause,
			)
			return nil
		}
		cause = errors.Join(cause, perr)
	}
	d.metrics.addDropped(reason, len(batch))
	return fmt.Errorf("deliver %d notifications: %w", len(batch), cause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
