// Package sink delivers flushed batches to their destinations: the local
// event store and, optionally, a remote webhook.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eugener/boatload"
	relay "github.com/eugener/boatload/internal"
)

// Sink receives one batch at a time. Implementations must be safe to call
// again with the same events after a failure.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batchID string, events []relay.Event) error
}

// Chain delivers to each sink in order and stops at the first failure. The
// batch stays in the processor backlog, so earlier sinks see it again on the
// next flush and must tolerate repeats.
type Chain []Sink

// Name returns "chain".
func (c Chain) Name() string { return "chain" }

// Deliver implements Sink.
func (c Chain) Deliver(ctx context.Context, batchID string, events []relay.Event) error {
	for _, s := range c {
		if err := s.Deliver(ctx, batchID, events); err != nil {
			return fmt.Errorf("%w: %s: %w", relay.ErrSinkFailed, s.Name(), err)
		}
	}
	return nil
}

// Process adapts s to the batch processor callback. Empty flushes are
// skipped. Each call is bounded by timeout when positive.
func Process(s Sink, timeout time.Duration) boatload.ProcessFunc[relay.Event] {
	return func(ctx context.Context, events []relay.Event, env boatload.Env) error {
		if len(events) == 0 {
			return nil
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := s.Deliver(ctx, env.BatchID, events); err != nil {
			return err
		}
		env.Logger.LogAttrs(ctx, slog.LevelDebug, "batch delivered",
			slog.String("batch_id", env.BatchID),
			slog.String("trigger", env.Trigger.String()),
			slog.Int("events", len(events)),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	}
}
