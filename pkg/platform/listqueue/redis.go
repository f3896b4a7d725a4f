package listqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores jobs as JSON in two Redis lists so any instance can pick up
// work enqueued by another.
type Redis[T any] struct {
	client     *redis.Client
	pendingKey string
	deadKey    string
}

// NewRedis uses "<prefix>:pending" and "<prefix>:dead" as list keys.
func NewRedis[T any](client *redis.Client, prefix string) *Redis[T] {
	return &Redis[T]{
		client:     client,
		pendingKey: prefix + ":pending",
		deadKey:    prefix + ":dead",
	}
}

func (q *Redis[T]) Enqueue(ctx context.Context, job T) error {
	return q.push(ctx, q.pendingKey, job)
}

func (q *Redis[T]) DeadLetter(ctx context.Context, job T) error {
	return q.push(ctx, q.deadKey, job)
}

func (q *Redis[T]) push(ctx context.Context, key string, job T) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job for %s: %w", key, err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push job to %s: %w", key, err)
	}
	return nil
}

func (q *Redis[T]) Dequeue(ctx context.Context) (T, bool, error) {
	var job T
	raw, err := q.client.LPop(ctx, q.pendingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return job, false, nil
	}
	if err != nil {
		return job, false, fmt.Errorf("pop job from %s: %w", q.pendingKey, err)
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return job, false, fmt.Errorf("decode job from %s: %w", q.pendingKey, err)
	}
	return job, true, nil
}

// Len reports the number of pending jobs.
func (q *Redis[T]) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey).Result()
}

// DeadLen reports the number of dead-lettered jobs.
func (q *Redis[T]) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey).Result()
}
