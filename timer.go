package boatload

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// timer periodically asks the worker to flush.
type timer[T any] struct {
	queue    *queue[T]
	interval time.Duration
	logger   *slog.Logger
}

// run blocks until ctx is cancelled. With a zero interval it never fires.
func (t *timer[T]) run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.LogAttrs(ctx, slog.LevelError, "timer stopped unexpectedly",
				slog.String("error", fmt.Sprint(rec)),
			)
		}
	}()

	if t.interval == 0 {
		<-ctx.Done()
		return
	}

	t.logger.LogAttrs(ctx, slog.LevelInfo, "timer started",
		slog.Duration("interval", t.interval),
	)

	// Reset only after the push returns; no drift correction.
	tm := time.NewTimer(t.interval)
	defer tm.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.C:
			if err := t.queue.pushControl(opProcess, TriggerInterval); err != nil {
				// Queue closed by Shutdown; the facade cancels us next.
				return
			}
			tm.Reset(t.interval)
		}
	}
}
