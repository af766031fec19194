package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurgeStore is the persistence interface consumed by RetentionWorker.
type PurgeStore interface {
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorker periodically deletes stored events older than the
// retention window.
type RetentionWorker struct {
	store     PurgeStore
	retention time.Duration
	interval  time.Duration
	purged    prometheus.Counter // may be nil
	now       func() time.Time
}

// NewRetentionWorker creates a retention worker. purged may be nil.
func NewRetentionWorker(store PurgeStore, retention, interval time.Duration, purged prometheus.Counter) *RetentionWorker {
	return &RetentionWorker{
		store:     store,
		retention: retention,
		interval:  interval,
		purged:    purged,
		now:       time.Now,
	}
}

// Name returns the worker identifier.
func (w *RetentionWorker) Name() string { return "retention" }

// Run purges once at startup, then on every tick until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.purge(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *RetentionWorker) purge(ctx context.Context) {
	cutoff := w.now().UTC().Add(-w.retention)
	n, err := w.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelError, "retention purge failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if n == 0 {
		return
	}
	if w.purged != nil {
		w.purged.Add(float64(n))
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "expired events purged",
		slog.Int64("events", n),
		slog.Time("cutoff", cutoff),
	)
}
