package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	relay "github.com/eugener/boatload/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id, typ string, at time.Time) relay.Event {
	return relay.Event{
		ID:         id,
		Type:       typ,
		Source:     "test",
		Client:     "ci",
		Payload:    json.RawMessage(fmt.Sprintf(`{"id":%q,"type":%q}`, id, typ)),
		ReceivedAt: at,
	}
}

func TestEventRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	events := []relay.Event{
		testEvent("e-1", "click", now.Add(-2*time.Second)),
		testEvent("e-2", "view", now.Add(-time.Second)),
		testEvent("e-3", "click", now),
	}
	if err := s.InsertEvents(ctx, "batch-1", events); err != nil {
		t.Fatal("insert:", err)
	}

	got, err := s.ListEvents(ctx, relay.EventFilter{})
	if err != nil {
		t.Fatal("list:", err)
	}
	if len(got) != 3 {
		t.Fatalf("list count = %d, want 3", len(got))
	}
	if got[0].ID != "e-3" {
		t.Errorf("newest first: got %q, want e-3", got[0].ID)
	}
	if !got[0].ReceivedAt.Equal(now) {
		t.Errorf("received_at = %v, want %v", got[0].ReceivedAt, now)
	}
	if string(got[0].Payload) != string(events[2].Payload) {
		t.Errorf("payload = %s, want %s", got[0].Payload, events[2].Payload)
	}
	if got[0].Client != "ci" {
		t.Errorf("client = %q, want ci", got[0].Client)
	}

	n, err := s.CountEvents(ctx, relay.EventFilter{Type: "click"})
	if err != nil {
		t.Fatal("count:", err)
	}
	if n != 2 {
		t.Errorf("click count = %d, want 2", n)
	}
}

func TestInsertEventsIgnoresDuplicates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	batch := []relay.Event{testEvent("dup-1", "a", now), testEvent("dup-2", "a", now)}
	if err := s.InsertEvents(ctx, "b1", batch); err != nil {
		t.Fatal(err)
	}
	// Retrying the same batch plus one new event must not fail.
	batch = append(batch, testEvent("dup-3", "a", now))
	if err := s.InsertEvents(ctx, "b2", batch); err != nil {
		t.Fatal("retry insert:", err)
	}

	n, err := s.CountEvents(ctx, relay.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestInsertEventsLargeBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	const total = insertChunk*2 + 17
	events := make([]relay.Event, total)
	for i := range events {
		events[i] = testEvent(fmt.Sprintf("big-%04d", i), "bulk", now)
	}
	if err := s.InsertEvents(ctx, "big", events); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountEvents(ctx, relay.EventFilter{Type: "bulk"})
	if err != nil {
		t.Fatal(err)
	}
	if n != total {
		t.Errorf("count = %d, want %d", n, total)
	}
}

func TestInsertEventsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.InsertEvents(context.Background(), "empty", nil); err != nil {
		t.Errorf("empty insert: %v", err)
	}
}

func TestListEventsFilters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []relay.Event{
		testEvent("f-1", "click", base),
		testEvent("f-2", "click", base.Add(500*time.Millisecond)),
		testEvent("f-3", "view", base.Add(time.Second)),
	}
	events[2].Source = "mobile"
	if err := s.InsertEvents(ctx, "f", events); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter relay.EventFilter
		want   int
	}{
		{"all", relay.EventFilter{}, 3},
		{"by type", relay.EventFilter{Type: "view"}, 1},
		{"by source", relay.EventFilter{Source: "mobile"}, 1},
		{"since sub-second", relay.EventFilter{Since: base.Add(250 * time.Millisecond)}, 2},
		{"limit", relay.EventFilter{Limit: 2}, 2},
		{"offset", relay.EventFilter{Offset: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDeleteEventsBefore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []relay.Event{
		testEvent("old-1", "a", now.Add(-48*time.Hour)),
		testEvent("old-2", "a", now.Add(-25*time.Hour)),
		testEvent("new-1", "a", now),
	}
	if err := s.InsertEvents(ctx, "r", events); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteEventsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	left, _ := s.CountEvents(ctx, relay.EventFilter{})
	if left != 1 {
		t.Errorf("remaining = %d, want 1", left)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
