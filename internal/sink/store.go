package sink

import (
	"context"

	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/storage"
)

// Store writes batches to the event store. Inserts ignore IDs that already
// exist, so redelivery after a downstream failure is harmless.
type Store struct {
	store storage.EventStore
}

// NewStore creates a Store sink.
func NewStore(s storage.EventStore) *Store {
	return &Store{store: s}
}

// Name returns "store".
func (s *Store) Name() string { return "store" }

// Deliver implements Sink.
func (s *Store) Deliver(ctx context.Context, batchID string, events []relay.Event) error {
	return s.store.InsertEvents(ctx, batchID, events)
}
