package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/boatload"
)

// Instrument wraps fn so every flush gets a span and is counted in m.
// Either m or tracer may be nil.
func Instrument[T any](fn boatload.ProcessFunc[T], m *Metrics, tracer trace.Tracer) boatload.ProcessFunc[T] {
	return func(ctx context.Context, items []T, env boatload.Env) error {
		trigger := env.Trigger.String()
		if tracer != nil {
			var span trace.Span
			ctx, span = tracer.Start(ctx, "boatload.flush",
				trace.WithAttributes(
					attribute.String("boatload.batch_id", env.BatchID),
					attribute.String("boatload.trigger", trigger),
					attribute.Int("boatload.batch_size", len(items)),
				))
			defer span.End()
			err := call(ctx, fn, items, env, m, trigger)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
		return call(ctx, fn, items, env, m, trigger)
	}
}

func call[T any](ctx context.Context, fn boatload.ProcessFunc[T], items []T, env boatload.Env, m *Metrics, trigger string) error {
	start := time.Now()
	err := fn(ctx, items, env)
	if m == nil {
		return err
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.FlushesTotal.WithLabelValues(trigger, outcome).Inc()
	m.FlushDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	if err == nil {
		m.BatchSize.Observe(float64(len(items)))
	}
	return err
}
