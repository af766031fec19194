package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/eugener/boatload"
	"github.com/eugener/boatload/internal/sink"
	"github.com/eugener/boatload/internal/testutil"
)

// TestIngestThroughProcessor drives the real batch processor: every accepted
// event must be in the store once Shutdown returns.
func TestIngestThroughProcessor(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	cfg := boatload.DefaultConfig()
	cfg.MaxBacklogSize = 7
	cfg.Logger = slog.New(slog.DiscardHandler)
	proc, err := boatload.New(cfg, sink.Process(sink.NewStore(store), time.Second))
	if err != nil {
		t.Fatal(err)
	}
	h := New(Deps{Processor: proc, Store: store})

	var want []string
	for i := range 5 {
		var b strings.Builder
		b.WriteByte('[')
		for j := range 4 {
			id := fmt.Sprintf("e-%d-%d", i, j)
			want = append(want, id)
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, `{"id":%q,"type":"t"}`, id)
		}
		b.WriteByte(']')
		if rec := do(t, h, http.MethodPost, "/v1/events", b.String()); rec.Code != http.StatusAccepted {
			t.Fatalf("ingest %d = %d", i, rec.Code)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got := store.IDs()
	if !slices.Equal(got, want) {
		t.Errorf("stored %d ids in order %v, want %v", len(got), got, want)
	}
	// 20 events at threshold 7: two threshold flushes plus the final one.
	if n := len(store.Batches()); n != 3 {
		t.Errorf("batches = %d, want 3", n)
	}

	if rec := do(t, h, http.MethodPost, "/v1/events", `{"type":"late"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ingest after shutdown = %d, want 503", rec.Code)
	}
}
