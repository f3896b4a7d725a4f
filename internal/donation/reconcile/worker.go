package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bloodlink/internal/donation/metrics"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

// DonorRecorder applies a claimed donation to the donor's profile. It must be
// idempotent per request.
type DonorRecorder interface {
	RecordDonation(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error
}

const (
	defaultInterval    = 30 * time.Second
	defaultMaxAttempts = 5
	defaultBatchSize   = 50
	defaultBaseBackoff = 30 * time.Second
	defaultMaxBackoff  = 30 * time.Minute
)

// Worker drains the queue on a fixed interval.
type Worker struct {
	queue       Queue
	recorder    DonorRecorder
	interval    time.Duration
	maxAttempts int
	batchSize   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithBackoff sets the delay after the first failure and its ceiling.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(w *Worker) {
		if base > 0 {
			w.baseBackoff = base
		}
		if ceiling >= w.baseBackoff {
			w.maxBackoff = ceiling
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(queue Queue, recorder DonorRecorder, opts ...Option) *Worker {
	w := &Worker{
		queue:       queue,
		recorder:    recorder,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		batchSize:   defaultBatchSize,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	w.maxBackoff = max(w.maxBackoff, w.baseBackoff)
	return w
}

// Run processes the queue every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "reconcile pass failed", "error", err)
			}
		}
	}
}

// RunOnce takes at most one batch off the queue. Jobs whose backoff has not
// elapsed go back untouched. A failing job is rescheduled with exponential
// backoff and re-enqueued only after the pass, so a pass never retries the
// same job twice. A job whose donor no longer exists or that ran out of
// attempts is dead-lettered. It returns how many jobs it attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	var (
		attempted int
		requeue   []Job
	)
	defer func() {
		// Jobs are never lost to an early return.
		for _, job := range requeue {
			if err := w.queue.Enqueue(ctx, job); err != nil {
				w.logger.ErrorContext(ctx, "failed to requeue reconcile job",
					"donor_id", job.DonorID.String(),
					"donation_request_id", job.RequestID.String(),
					"error", err,
				)
			}
		}
	}()

	for taken := 0; taken < w.batchSize; taken++ {
		job, ok, err := w.queue.Dequeue(ctx)
		if err != nil {
			return attempted, err
		}
		if !ok {
			return attempted, nil
		}
		if job.NextAttemptAt.After(now) {
			requeue = append(requeue, job)
			continue
		}
		attempted++

		err = w.recorder.RecordDonation(ctx, job.DonorID, job.RequestID, job.DonationDate)
		if err == nil {
			w.count("succeeded")
			w.logger.InfoContext(ctx, "donor record reconciled",
				"donor_id", job.DonorID.String(),
				"donation_request_id", job.RequestID.String(),
				"attempts", job.Attempts+1,
			)
			continue
		}

		job.Attempts++
		job.LastError = err.Error()
		if errors.Is(err, sentinel.ErrNotFound) || job.Attempts >= w.maxAttempts {
			w.count("dead_lettered")
			w.logger.ErrorContext(ctx, "donor record reconciliation abandoned",
				"donor_id", job.DonorID.String(),
				"donation_request_id", job.RequestID.String(),
				"attempts", job.Attempts,
				"error", err,
			)
			if dlErr := w.queue.DeadLetter(ctx, job); dlErr != nil {
				return attempted, dlErr
			}
			continue
		}
		job.NextAttemptAt = now.Add(w.backoff(job.Attempts))
		w.count("retried")
		requeue = append(requeue, job)
	}
	return attempted, nil
}

// backoff doubles from the base delay per failed attempt, capped at maxBackoff.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.baseBackoff
	for i := 1; i < attempts && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}

func (w *Worker) count(result string) {
	if w.metrics != nil {
		w.metrics.IncrementReconcileJob(result)
	}
}
