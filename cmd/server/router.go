package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloodlink/internal/donation/handler"
	"bloodlink/internal/platform/config"
	"bloodlink/internal/platform/metrics"
	ratelimit "bloodlink/internal/ratelimit/middleware"
	"bloodlink/pkg/platform/httputil"
	"bloodlink/pkg/platform/middleware/auth"
	"bloodlink/pkg/platform/middleware/metadata"
	"bloodlink/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

func newRouter(
	cfg config.Config,
	log *slog.Logger,
	validator auth.JWTValidator,
	donations *handler.Handler,
	limiter *ratelimit.Middleware,
	checks map[string]func(context.Context) error,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.NewHTTP().Middleware)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", healthHandler(log, checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, log))
		r.Use(limiter.RateLimit)
		donations.Register(r)
	})
	return r
}

// healthHandler pings every configured backend and reports 503 if any fails.
func healthHandler(log *slog.Logger, checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.WarnContext(ctx, "health check failed", "backend", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "backends": results})
	}
}
