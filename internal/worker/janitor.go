package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/boatload/internal/ratelimit"
)

// LimiterJanitor drops rate limiters of clients that have been idle longer
// than idle.
type LimiterJanitor struct {
	registry *ratelimit.Registry
	idle     time.Duration
	interval time.Duration
}

// NewLimiterJanitor creates a janitor for registry.
func NewLimiterJanitor(registry *ratelimit.Registry, idle, interval time.Duration) *LimiterJanitor {
	return &LimiterJanitor{registry: registry, idle: idle, interval: interval}
}

// Name returns the worker identifier.
func (w *LimiterJanitor) Name() string { return "limiter_janitor" }

// Run evicts stale limiters on every tick until ctx is cancelled.
func (w *LimiterJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := w.registry.EvictStale(now.Add(-w.idle)); n > 0 {
				slog.LogAttrs(ctx, slog.LevelDebug, "idle rate limiters evicted", slog.Int("count", n))
			}
		}
	}
}
