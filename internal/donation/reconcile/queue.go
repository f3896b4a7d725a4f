// Package reconcile retries donor-profile updates that failed after a
// committed acceptance. The request stays claimed; only the donor's
// last-donation date and counter lag until a retry succeeds.
package reconcile

import (
	"time"

	"github.com/redis/go-redis/v9"

	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/listqueue"
)

// Job is one pending donor-profile update.
type Job struct {
	ID            id.ReconciliationJobID `json:"id"`
	DonorID       id.UserID              `json:"donor_id"`
	RequestID     id.DonationRequestID   `json:"request_id"`
	DonationDate  time.Time              `json:"donation_date"`
	Attempts      int                    `json:"attempts"`
	LastError     string                 `json:"last_error,omitempty"`
	EnqueuedAt    time.Time              `json:"enqueued_at"`
	NextAttemptAt time.Time              `json:"next_attempt_at"`
}

// NewJob builds a first-attempt job that is due immediately.
func NewJob(donorID id.UserID, requestID id.DonationRequestID, date time.Time, cause error, now time.Time) Job {
	j := Job{
		ID:            id.NewReconciliationJobID(),
		DonorID:       donorID,
		RequestID:     requestID,
		DonationDate:  date,
		EnqueuedAt:    now,
		NextAttemptAt: now,
	}
	if cause != nil {
		j.LastError = cause.Error()
	}
	return j
}

// Queue is a FIFO of jobs plus a dead-letter list.
type Queue = listqueue.Queue[Job]

const redisPrefix = "bloodlink:reconcile"

func NewMemoryQueue() *MemoryQueue {
	return listqueue.NewMemory[Job]()
}

// NewRedisQueue shares pending and dead-lettered jobs across instances.
func NewRedisQueue(client *redis.Client) *listqueue.Redis[Job] {
	return listqueue.NewRedis[Job](client, redisPrefix)
}

// MemoryQueue is the process-local Queue.
type MemoryQueue = listqueue.Memory[Job]
