package testutil

import (
	"net/http"
	"time"

	id "bloodlink/pkg/domain"
	"bloodlink/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context the way the auth middleware does.
// If userID is not a valid UUID the request is returned unchanged.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithAuth adds the user ID and pins the request clock.
func WithAuth(req *http.Request, userID string, now time.Time) *http.Request {
	return WithTime(WithUserID(req, userID), now)
}
