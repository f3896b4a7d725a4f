package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bloodlink_user_cache_lookups_total",
	Help: "User profile cache lookups by result (hit, miss, error)",
}, []string{"result"})

const userKeyPrefix = "bloodlink:user:"

// Directory is the backing user source wrapped by the cache.
type Directory interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	ListStaff(ctx context.Context) ([]*models.User, error)
	ListMatchingDonors(ctx context.Context, bloodGroup id.BloodGroup, district string, after id.UserID, limit int) ([]*models.User, error)
	RecordDonation(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error
}

// CachedDirectory is a read-through Redis cache over single-user lookups.
// FindByID may serve an entry up to the TTL old; eligibility reads use
// FindByIDFresh instead. RecordDonation evicts the entry before returning.
// Cache failures degrade to the backing directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*CachedDirectory)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedDirectory) { c.logger = logger }
}

func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, opts ...CacheOption) *CachedDirectory {
	c := &CachedDirectory{next: next, client: client, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *CachedDirectory) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	key := userKeyPrefix + userID.String()
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var u models.User
		if jsonErr := json.Unmarshal(raw, &u); jsonErr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return &u, nil
		}
		cacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "user cache read failed", "user_id", userID, "error", err)
	}

	return c.FindByIDFresh(ctx, userID)
}

// FindByIDFresh reads the backing directory and refreshes the cached entry.
func (c *CachedDirectory) FindByIDFresh(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := c.next.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(u); err == nil {
		if err := c.client.Set(ctx, userKeyPrefix+userID.String(), payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "user cache write failed", "user_id", userID, "error", err)
		}
	}
	return u, nil
}

func (c *CachedDirectory) ListStaff(ctx context.Context) ([]*models.User, error) {
	return c.next.ListStaff(ctx)
}

func (c *CachedDirectory) ListMatchingDonors(ctx context.Context, bloodGroup id.BloodGroup, district string, after id.UserID, limit int) ([]*models.User, error) {
	return c.next.ListMatchingDonors(ctx, bloodGroup, district, after, limit)
}

func (c *CachedDirectory) RecordDonation(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error {
	if err := c.next.RecordDonation(ctx, donorID, requestID, date); err != nil {
		return err
	}
	return c.Invalidate(ctx, donorID)
}

// Invalidate drops a cached profile.
func (c *CachedDirectory) Invalidate(ctx context.Context, userID id.UserID) error {
	return c.client.Del(ctx, userKeyPrefix+userID.String()).Err()
}
