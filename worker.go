package boatload

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

// worker is the only consumer of the queue and the only goroutine that
// touches backlog.
type worker[T any] struct {
	queue          *queue[T]
	process        ProcessFunc[T]
	maxBacklogSize int
	logger         *slog.Logger
	userContext    any

	backlog []T
}

// run consumes messages until it sees opShutdown. It returns early, without
// crashing the process, on an unknown op or a panic outside the callback.
func (w *worker[T]) run() {
	ctx := context.Background()
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.LogAttrs(ctx, slog.LevelError, "worker stopped unexpectedly",
				slog.String("error", fmt.Sprint(rec)),
				slog.Int("backlog", len(w.backlog)),
			)
		}
	}()

	w.logger.LogAttrs(ctx, slog.LevelInfo, "worker started")

	for {
		m := w.queue.pop()

		switch m.op {
		case opItem:
			w.backlog = append(w.backlog, m.payload)
			if w.thresholdReached() {
				w.flush(ctx, TriggerThreshold)
			}

		case opProcess:
			w.flush(ctx, m.trigger)

		case opShutdown:
			if err := w.flush(ctx, TriggerShutdown); err != nil {
				w.logger.LogAttrs(ctx, slog.LevelError, "final flush failed, dropping backlog",
					slog.Int("count", len(w.backlog)),
				)
			}
			w.logger.LogAttrs(ctx, slog.LevelInfo, "worker stopped")
			return

		default:
			w.logger.LogAttrs(ctx, slog.LevelError, "unknown operation",
				slog.String("op", m.op.String()),
				slog.Int("value", int(m.op)),
			)
			return
		}
	}
}

func (w *worker[T]) thresholdReached() bool {
	return w.maxBacklogSize > 0 && len(w.backlog) >= w.maxBacklogSize
}

// flush hands the backlog to the callback. The backlog is reset only when
// the callback returns nil.
func (w *worker[T]) flush(ctx context.Context, trigger Trigger) error {
	env := Env{
		Logger:      w.logger,
		UserContext: w.userContext,
		BatchID:     uuid.Must(uuid.NewV7()).String(),
		Trigger:     trigger,
	}

	if err := w.call(ctx, env); err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "batch processing failed",
			slog.String("batch_id", env.BatchID),
			slog.String("trigger", trigger.String()),
			slog.Int("count", len(w.backlog)),
			slog.String("error", err.Error()),
		)
		return err
	}

	// The callback may keep the old slice; start a new one.
	w.backlog = nil
	return nil
}

// call invokes the callback, converting a panic into an error.
func (w *worker[T]) call(ctx context.Context, env Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	// Clip so appends inside the callback cannot write into our spare capacity.
	return w.process(ctx, slices.Clip(w.backlog), env)
}
