// Package server implements the HTTP ingest API of the boatload relay.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/boatload"
	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/cache"
	"github.com/eugener/boatload/internal/ratelimit"
	"github.com/eugener/boatload/internal/storage"
	"github.com/eugener/boatload/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Processor is the batch processor events are pushed into.
type Processor interface {
	Push(events ...relay.Event) error
	Process() error
	QueueLen() int
	Running() (worker, timer bool)
}

var _ Processor = (*boatload.AsyncBatchProcessor[relay.Event])(nil)

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Processor      Processor
	Store          storage.EventStore  // nil = no stored-event queries
	Auth           relay.Authenticator // nil = every caller is "anonymous"
	RateLimiter    *ratelimit.Registry // nil = no rate limiting
	DefaultRPM     int64               // applied when a client has no own limit
	Dedupe         cache.Dedupe        // nil = no duplicate suppression
	Metrics        *telemetry.Metrics  // nil = no metrics
	MetricsHandler http.Handler        // nil = no /metrics route
	ReadyCheck     ReadyChecker        // nil = always ready
	MaxBodyBytes   int64               // 0 = 4 MiB
	StartedAt      time.Time           // zero = time of New
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 4 << 20
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	r.NotFound(s.handleNotFound)

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/events", s.handleIngest)
		if deps.Store != nil {
			r.Get("/events", s.handleListEvents)
		}
		r.Post("/flush", s.handleFlush)
		r.Get("/stats", s.handleStats)
	})

	return r
}

type server struct {
	deps Deps
}
