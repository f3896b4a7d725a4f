package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink/internal/ratelimit/models"
	"bloodlink/internal/ratelimit/store"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

var testLimits = map[models.EndpointClass]models.Limit{
	models.ClassRead:  {Requests: 3, Window: time.Minute},
	models.ClassWrite: {Requests: 1, Window: time.Minute},
}

func newTestHandler(s BucketStore, opts ...Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(s, testLimits, logger, opts...)
	return m.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func do(h http.Handler, method string, userID id.UserID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/donation-requests", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), "203.0.113.7", "test")
	if !userID.IsNil() {
		ctx = requestcontext.WithUserID(ctx, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestRateLimit(t *testing.T) {
	t.Run("writes are limited separately from reads", func(t *testing.T) {
		h := newTestHandler(store.NewInMemoryBucketStore())
		user := id.UserID(uuid.New())

		assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, user).Code)
		rec := do(h, http.MethodPost, user)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		var body models.RateLimitExceededResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rate_limit_exceeded", body.Error)
		assert.Equal(t, 1, body.QuotaLimit)

		get := do(h, http.MethodGet, user)
		assert.Equal(t, http.StatusNoContent, get.Code)
		assert.Equal(t, "3", get.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "2", get.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("callers have independent budgets", func(t *testing.T) {
		h := newTestHandler(store.NewInMemoryBucketStore())

		assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, id.UserID(uuid.New())).Code)
		assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, id.UserID(uuid.New())).Code)
	})

	t.Run("anonymous callers are keyed by client IP", func(t *testing.T) {
		h := newTestHandler(store.NewInMemoryBucketStore())

		assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, id.UserID{}).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodDelete, id.UserID{}).Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		h := newTestHandler(failingStore{})

		assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, id.UserID(uuid.New())).Code)
	})

	t.Run("disabled middleware never limits", func(t *testing.T) {
		h := newTestHandler(store.NewInMemoryBucketStore(), WithDisabled(true))
		user := id.UserID(uuid.New())

		for range 5 {
			assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, user).Code)
		}
	})
}
