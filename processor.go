package boatload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// AsyncBatchProcessor batches items pushed from any goroutine and flushes
// them through a ProcessFunc on a single background worker.
//
// Callers must not push after calling Shutdown; such pushes fail with
// ErrClosed.
type AsyncBatchProcessor[T any] struct {
	queue  *queue[T]
	worker *worker[T]
	timer  *timer[T]

	workerAlive atomic.Bool
	timerAlive  atomic.Bool

	// mu guards the start sequence and the fields below.
	mu          sync.Mutex
	workerDone  chan struct{}
	timerDone   chan struct{}
	timerCancel context.CancelFunc
}

// New creates a processor. No goroutines are started until the first call to
// Push, Process or Shutdown.
func New[T any](cfg Config, fn ProcessFunc[T]) (*AsyncBatchProcessor[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: process func is required", ErrInvalidConfig)
	}

	logger := cfg.logger()
	q := newQueue[T](cfg.MaxQueueSize)

	return &AsyncBatchProcessor[T]{
		queue: q,
		worker: &worker[T]{
			queue:          q,
			process:        fn,
			maxBacklogSize: cfg.MaxBacklogSize,
			logger:         logger,
			userContext:    cfg.UserContext,
		},
		timer: &timer[T]{
			queue:    q,
			interval: cfg.DeliveryInterval,
			logger:   logger,
		},
	}, nil
}

// Push enqueues items in order. It returns a *QueueOverflowError (matching
// ErrQueueOverflow) at the first item that does not fit; items before it
// remain enqueued.
func (p *AsyncBatchProcessor[T]) Push(items ...T) error {
	if err := p.ensureRunning(); err != nil {
		return err
	}
	for _, v := range items {
		if err := p.queue.pushItem(v); err != nil {
			return err
		}
	}
	return nil
}

// Process requests an asynchronous flush of the backlog and returns
// immediately.
func (p *AsyncBatchProcessor[T]) Process() error {
	if err := p.ensureRunning(); err != nil {
		return err
	}
	return p.queue.pushControl(opProcess, TriggerManual)
}

// Shutdown flushes the backlog one final time, stops the timer and waits for
// the worker to exit. If ctx ends first, Shutdown returns ctx.Err() and the
// worker finishes in the background. Calling Shutdown again waits for the
// same worker and returns nil once it has exited.
func (p *AsyncBatchProcessor[T]) Shutdown(ctx context.Context) error {
	if err := p.ensureRunning(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	// A second caller finds the queue closed and just waits.
	_ = p.queue.pushControl(opShutdown, TriggerShutdown)

	p.mu.Lock()
	cancel, timerDone, workerDone := p.timerCancel, p.timerDone, p.workerDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-timerDone
	}

	if workerDone == nil {
		return nil
	}
	select {
	case <-workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLen returns the number of messages waiting for the worker.
func (p *AsyncBatchProcessor[T]) QueueLen() int {
	return p.queue.len()
}

// Running reports whether the worker and timer goroutines are alive.
func (p *AsyncBatchProcessor[T]) Running() (worker, timer bool) {
	return p.workerAlive.Load(), p.timerAlive.Load()
}

// ensureRunning starts whichever background goroutine is not alive. The
// lock-free check keeps Push off the mutex once both are running.
func (p *AsyncBatchProcessor[T]) ensureRunning() error {
	if p.workerAlive.Load() && p.timerAlive.Load() {
		return nil
	}
	if p.queue.isClosed() {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Shutdown may have won the race for mu; its timer cancel is already spent.
	if p.queue.isClosed() {
		return ErrClosed
	}
	if !p.workerAlive.Load() {
		p.startWorker()
	}
	if !p.timerAlive.Load() {
		p.startTimer()
	}
	return nil
}

// startWorker must be called with mu held.
func (p *AsyncBatchProcessor[T]) startWorker() {
	done := make(chan struct{})
	p.workerDone = done
	p.workerAlive.Store(true)
	go func() {
		defer close(done)
		defer p.workerAlive.Store(false)
		p.worker.run()
	}()
}

// startTimer must be called with mu held.
func (p *AsyncBatchProcessor[T]) startTimer() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.timerCancel = cancel
	p.timerDone = done
	p.timerAlive.Store(true)
	go func() {
		defer close(done)
		defer p.timerAlive.Store(false)
		p.timer.run(ctx)
	}()
}
