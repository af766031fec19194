// Package relay defines domain types for the boatload event relay daemon.
// This package has no project imports -- it is the dependency root.
package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// Event is a single client-submitted event as it travels through the batch
// processor into the sinks.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source,omitempty"`
	Client     string          `json:"client,omitempty"` // token name that submitted the event
	Payload    json.RawMessage `json:"payload"`          // the original JSON object, verbatim
	ReceivedAt time.Time       `json:"received_at"`
}

// EventFilter narrows event queries.
type EventFilter struct {
	Type   string
	Source string
	Since  time.Time // zero = unbounded
	Offset int
	Limit  int // 0 = default page size
}

// Stats is a point-in-time view of the relay for the stats endpoint.
type Stats struct {
	QueueLength   int   `json:"queue_length"`
	StoredEvents  int   `json:"stored_events"`
	WorkerRunning bool  `json:"worker_running"`
	TimerRunning  bool  `json:"timer_running"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Authenticator resolves the caller of an ingest request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Client, error)
}

// Client is the authenticated ingest caller attached to request context.
type Client struct {
	Name     string
	RPMLimit int64 // 0 = use default
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Client is filled in later by the auth middleware through the same pointer.
type requestMeta struct {
	RequestID string
	Client    *Client
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// ClientFromContext extracts the authenticated client from context.
func ClientFromContext(ctx context.Context) *Client {
	if m := metaFromContext(ctx); m != nil {
		return m.Client
	}
	return nil
}

// ContextWithClient stores the client in the existing requestMeta if present,
// otherwise it creates new metadata (e.g. in tests).
func ContextWithClient(ctx context.Context, c *Client) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Client = c
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Client: c})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// HashToken returns the hex-encoded SHA-256 hash of a raw ingest token.
// Tokens are only ever compared in hashed form.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
