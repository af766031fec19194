package testutil

import (
	"context"
	"slices"
	"sync"

	relay "github.com/eugener/boatload/internal"
)

// FakeSink records deliveries. DeliverFn, when set, decides the result.
type FakeSink struct {
	SinkName  string
	DeliverFn func(batchID string, events []relay.Event) error

	mu      sync.Mutex
	batches [][]relay.Event
}

// Name returns SinkName or "fake".
func (f *FakeSink) Name() string {
	if f.SinkName == "" {
		return "fake"
	}
	return f.SinkName
}

// Deliver records the batch and returns DeliverFn's result.
func (f *FakeSink) Deliver(_ context.Context, batchID string, events []relay.Event) error {
	f.mu.Lock()
	f.batches = append(f.batches, slices.Clone(events))
	f.mu.Unlock()
	if f.DeliverFn != nil {
		return f.DeliverFn(batchID, events)
	}
	return nil
}

// Batches returns a copy of every delivered batch.
func (f *FakeSink) Batches() [][]relay.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches)
}
