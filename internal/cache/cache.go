// Package cache provides duplicate suppression for ingested events.
package cache

import "context"

// Dedupe remembers recently seen event IDs.
type Dedupe interface {
	// FirstSeen records id and reports whether it was not already present.
	FirstSeen(ctx context.Context, id string) bool
	// Forget removes id so a later submission is accepted again.
	Forget(ctx context.Context, id string)
	// Purge removes all remembered IDs.
	Purge(ctx context.Context)
}
