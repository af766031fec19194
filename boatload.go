// Package boatload asynchronously accumulates items pushed from any number of
// goroutines and hands them to a processing function in batches.
//
// A single background worker owns the backlog. It flushes when the backlog
// reaches Config.MaxBacklogSize, when Config.DeliveryInterval elapses, when
// the caller asks via Process, and one final time during Shutdown. Background
// goroutines are started lazily on the first call to Push, Process or
// Shutdown.
package boatload

import (
	"context"
	"log/slog"
)

// ProcessFunc handles one batch. items is only valid for the duration of the
// call unless the function returns nil, in which case it may be retained.
// Returning an error (or panicking) keeps the items in the backlog so the
// next flush retries them together with anything pushed since.
//
// items may be empty: explicit and interval flushes always invoke the
// function.
type ProcessFunc[T any] func(ctx context.Context, items []T, env Env) error

// Env is passed to every ProcessFunc call.
type Env struct {
	Logger      *slog.Logger
	UserContext any     // Config.UserContext, passed through unchanged
	BatchID     string  // UUIDv7, unique per flush attempt
	Trigger     Trigger // why this flush happened
}

// Trigger identifies what caused a flush.
type Trigger int

const (
	// TriggerInterval is a flush requested by the delivery timer.
	TriggerInterval Trigger = iota
	// TriggerThreshold is a flush caused by the backlog reaching MaxBacklogSize.
	TriggerThreshold
	// TriggerManual is a flush requested through Process.
	TriggerManual
	// TriggerShutdown is the final flush performed during Shutdown.
	TriggerShutdown
)

// String returns a human-readable trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerInterval:
		return "interval"
	case TriggerThreshold:
		return "threshold"
	case TriggerManual:
		return "manual"
	case TriggerShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
