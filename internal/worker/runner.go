package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner manages a set of workers, cancelling all on first error.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run starts all workers in parallel and blocks until every one has
// returned. The first non-nil error cancels the others and is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		slog.LogAttrs(ctx, slog.LevelInfo, "worker started", slog.String("type", name))
		g.Go(func() error {
			err := w.Run(ctx)
			slog.LogAttrs(ctx, slog.LevelDebug, "worker stopped", slog.String("type", name))
			return err
		})
	}
	return g.Wait()
}

func workerName(w Worker) string {
	if n, ok := w.(named); ok {
		return n.Name()
	}
	return "unknown"
}
