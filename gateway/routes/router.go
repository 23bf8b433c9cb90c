package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"poolhost/gateway/middleware"
	"poolhost/native/pool"
	"poolhost/storage/eventlog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventQuery reads the persisted event history.
type EventQuery interface {
	Recent(ctx context.Context, filter eventlog.Filter) ([]eventlog.Record, error)
}

type Config struct {
	Engine        *pool.Engine
	Events        EventQuery
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
}

// New builds the admin router. Read routes are always mounted; action routes
// need an authenticator because the token carries the signer set.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("routes: engine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := chi.NewRouter()
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	pr := &poolRoutes{engine: cfg.Engine, events: cfg.Events, logger: cfg.Logger}
	r.Route("/v1", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware)
		}
		pr.mountQueries(sr)
		if cfg.Authenticator != nil {
			sr.Group(func(ar chi.Router) {
				ar.Use(cfg.Authenticator.Middleware)
				pr.mountActions(ar)
			})
		}
	})
	return r, nil
}
