// Package storage defines persistence interfaces for the relay.
package storage

import (
	"context"
	"time"

	relay "github.com/eugener/boatload/internal"
)

// EventStore manages event persistence.
type EventStore interface {
	InsertEvents(ctx context.Context, batchID string, events []relay.Event) error
	ListEvents(ctx context.Context, f relay.EventFilter) ([]relay.Event, error)
	CountEvents(ctx context.Context, f relay.EventFilter) (int, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	EventStore
	Ping(ctx context.Context) error
	Close() error
}
