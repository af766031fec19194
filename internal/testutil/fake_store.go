// Package testutil provides configurable test fakes for relay interfaces.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	relay "github.com/eugener/boatload/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
type FakeStore struct {
	mu      sync.RWMutex
	events  map[string]relay.Event
	order   []string
	batches []string

	// InsertErr, when set, is returned by InsertEvents before anything is
	// stored.
	InsertErr error
	// QueryErr, when set, is returned by ListEvents and CountEvents.
	QueryErr error
	PingErr  error
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{events: make(map[string]relay.Event)}
}

// InsertEvents stores events, skipping IDs already present.
func (s *FakeStore) InsertEvents(_ context.Context, batchID string, events []relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.batches = append(s.batches, batchID)
	for _, e := range events {
		if _, ok := s.events[e.ID]; ok {
			continue
		}
		s.events[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return nil
}

// ListEvents returns matching events, newest first.
func (s *FakeStore) ListEvents(_ context.Context, f relay.EventFilter) ([]relay.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	var out []relay.Event
	for _, id := range slices.Backward(s.order) {
		e := s.events[id]
		if match(e, f) {
			out = append(out, e)
		}
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountEvents counts matching events.
func (s *FakeStore) CountEvents(_ context.Context, f relay.EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.QueryErr != nil {
		return 0, s.QueryErr
	}
	n := 0
	for _, e := range s.events {
		if match(e, f) {
			n++
		}
	}
	return n, nil
}

// DeleteEventsBefore removes events received before cutoff.
func (s *FakeStore) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		if s.events[id].ReceivedAt.Before(cutoff) {
			delete(s.events, id)
			n++
			return true
		}
		return false
	})
	return n, nil
}

// Ping returns PingErr.
func (s *FakeStore) Ping(context.Context) error { return s.PingErr }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

// IDs returns stored event IDs in insertion order.
func (s *FakeStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Batches returns the batch IDs passed to InsertEvents.
func (s *FakeStore) Batches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.batches)
}

func match(e relay.Event, f relay.EventFilter) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if !f.Since.IsZero() && e.ReceivedAt.Before(f.Since) {
		return false
	}
	return true
}
