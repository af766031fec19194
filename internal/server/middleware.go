package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/telemetry"
)

var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

func acquireStatusWriter(w http.ResponseWriter) *statusWriter {
	sw := statusWriterPool.Get().(*statusWriter)
	sw.ResponseWriter = w
	sw.status = http.StatusOK
	sw.wroteHeader = false
	return sw
}

func releaseStatusWriter(sw *statusWriter) {
	sw.ResponseWriter = nil
	statusWriterPool.Put(sw)
}

// recovery catches panics and returns 500.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError,
					errorResponse(http.StatusInternalServerError, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader is in canonical form for direct header map access.
const requestIDHeader = "X-Request-Id"

// requestID propagates the caller's X-Request-Id or assigns a UUIDv7.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 && vals[0] != "" {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		next.ServeHTTP(w, r.WithContext(relay.ContextWithRequestID(r.Context(), id)))
	})
}

// logging logs each request once it has been served.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := acquireStatusWriter(w)
		next.ServeHTTP(sw, r)
		status := sw.status
		releaseStatusWriter(sw)

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelWarn
		}
		client := ""
		if c := relay.ClientFromContext(r.Context()); c != nil {
			client = c.Name
		}
		slog.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", relay.RequestIDFromContext(r.Context())),
			slog.String("client", client),
		)
	})
}

var anonymous = &relay.Client{Name: "anonymous"}

// authenticate resolves the caller and stores it in the request metadata
// created by requestID, so no new request copy is needed.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := anonymous
		if s.deps.Auth != nil {
			c, err := s.deps.Auth.Authenticate(r.Context(), r)
			if err != nil {
				writeError(w, err)
				return
			}
			client = c
		}
		ctx := relay.ContextWithClient(r.Context(), client)
		if ctx == r.Context() {
			next.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// rateLimit enforces the per-client requests-per-minute budget.
func (s *server) rateLimit(next http.Handler) http.Handler {
	if s.deps.RateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := relay.ClientFromContext(r.Context())
		if client == nil {
			client = anonymous
		}
		rpm := client.RPMLimit
		if rpm == 0 {
			rpm = s.deps.DefaultRPM
		}
		res := s.deps.RateLimiter.GetOrCreate(client.Name, rpm).Allow()
		if res.Limit > 0 {
			w.Header().Set("X-Ratelimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-Ratelimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		}
		if !res.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.Inc()
			}
			retry := max(1, int(math.Ceil(res.RetryAfterSeconds)))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSON(w, http.StatusTooManyRequests,
				errorResponse(http.StatusTooManyRequests, relay.ErrRateLimited.Error()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusText holds pre-formatted status codes for metric labels.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

// metricsMiddleware records request count, duration and in-flight requests.
func metricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()
			start := time.Now()

			sw := acquireStatusWriter(w)
			next.ServeHTTP(sw, r)
			status := sw.status
			releaseStatusWriter(sw)

			pattern := routePattern(r)
			code := strconv.Itoa(status)
			if status >= 0 && status < len(statusText) {
				code = statusText[status]
			}
			m.RequestsTotal.WithLabelValues(r.Method, pattern, code).Inc()
			m.RequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the matched chi pattern so labels stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter captures the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
