package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueLener reports the number of messages waiting in a batch processor.
type QueueLener interface {
	QueueLen() int
}

// QueueSampler copies the processor queue length into a gauge.
type QueueSampler struct {
	queue    QueueLener
	gauge    prometheus.Gauge
	interval time.Duration
}

// NewQueueSampler samples q into gauge every interval.
func NewQueueSampler(q QueueLener, gauge prometheus.Gauge, interval time.Duration) *QueueSampler {
	return &QueueSampler{queue: q, gauge: gauge, interval: interval}
}

// Name returns the worker identifier.
func (w *QueueSampler) Name() string { return "queue_sampler" }

// Run samples immediately and then on every tick until ctx is cancelled.
func (w *QueueSampler) Run(ctx context.Context) error {
	w.sample()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *QueueSampler) sample() {
	w.gauge.Set(float64(w.queue.QueueLen()))
}
