package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/boatload"
	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/auth"
	"github.com/eugener/boatload/internal/cache"
	"github.com/eugener/boatload/internal/circuitbreaker"
	"github.com/eugener/boatload/internal/cloudauth"
	"github.com/eugener/boatload/internal/config"
	"github.com/eugener/boatload/internal/ratelimit"
	"github.com/eugener/boatload/internal/server"
	"github.com/eugener/boatload/internal/sink"
	"github.com/eugener/boatload/internal/storage/sqlite"
	"github.com/eugener/boatload/internal/telemetry"
	"github.com/eugener/boatload/internal/worker"
)

const (
	flushTimeout       = time.Minute
	queueSampleEvery   = 5 * time.Second
	retentionEvery     = time.Hour
	limiterIdle        = 10 * time.Minute
	limiterSweepEvery  = time.Minute
	dnsRefreshInterval = 5 * time.Minute
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	slog.Info("starting boatload", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var tracer trace.Tracer
	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
		tracer = telemetry.Tracer("github.com/eugener/boatload")
	}

	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	// drain takes over closing the store once the processor has started.
	closeStore := true
	defer func() {
		if closeStore {
			store.Close()
		}
	}()

	sinks := sink.Chain{sink.NewStore(store)}
	if cfg.Webhook.URL != "" {
		wh, err := newWebhookSink(ctx, cfg.Webhook, metrics)
		if err != nil {
			return err
		}
		sinks = append(sinks, wh)
		slog.Info("webhook sink enabled", "url", cfg.Webhook.URL)
	}

	process := telemetry.Instrument(sink.Process(sinks, flushTimeout), metrics, tracer)
	processor, err := boatload.New(cfg.BatchOptions(logger.With("component", "batch")), process)
	if err != nil {
		return err
	}

	var dedupe cache.Dedupe
	if cfg.Dedupe.Enabled {
		mem, err := cache.NewMemory(cfg.Dedupe.MaxSize, cfg.Dedupe.TTL)
		if err != nil {
			return err
		}
		dedupe = mem
	}

	var authn relay.Authenticator
	if len(cfg.Auth.Tokens) > 0 {
		authn = auth.NewTokenAuth(cfg.TokenHashes(relay.HashToken))
	} else {
		slog.Warn("no auth tokens configured, ingest API is open")
	}

	limiter := ratelimit.NewRegistry()
	handler := server.New(server.Deps{
		Processor:      processor,
		Store:          store,
		Auth:           authn,
		RateLimiter:    limiter,
		DefaultRPM:     cfg.RateLimits.DefaultRPM,
		Dedupe:         dedupe,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		ReadyCheck:     store.Ping,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	workers := []worker.Worker{
		worker.NewHTTPServer(srv, cfg.Server.ShutdownTimeout),
		worker.NewLimiterJanitor(limiter, limiterIdle, limiterSweepEvery),
	}
	if metrics != nil {
		workers = append(workers, worker.NewQueueSampler(processor, metrics.QueueLength, queueSampleEvery))
	}
	if cfg.Database.Retention > 0 {
		var purged prometheus.Counter
		if metrics != nil {
			purged = metrics.EventsPurged
		}
		workers = append(workers, worker.NewRetentionWorker(store, cfg.Database.Retention, retentionEvery, purged))
	}

	slog.Info("boatload ready", "addr", cfg.Server.Addr)
	runErr := worker.NewRunner(workers...).Run(ctx)
	if runErr != nil {
		slog.Error("worker failed", "error", runErr)
	}

	// The HTTP worker has stopped accepting events; drain what is queued.
	slog.Info("shutting down", "queued", processor.QueueLen())
	closeStore = false
	drainErr := drain(processor, store, cfg.Server.ShutdownTimeout)

	slog.Info("boatload stopped")
	return errors.Join(runErr, drainErr)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain shuts p down and closes store once the final flush has finished. If
// the timeout fires first the flush is still writing, so store stays open
// until the process exits.
func drain(p shutdowner, store io.Closer, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		slog.Error("batch processor did not drain in time, leaving store open", "error", err)
		return fmt.Errorf("drain batch processor: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newWebhookSink assembles the webhook transport chain: cached DNS, then
// authentication, guarded by a circuit breaker.
func newWebhookSink(ctx context.Context, cfg config.WebhookConfig, metrics *telemetry.Metrics) (*sink.Webhook, error) {
	resolver := &dnscache.Resolver{}
	go refreshDNS(ctx, resolver, dnsRefreshInterval)

	// Token sources outlive the signal context so the final drain can still
	// authenticate.
	rt, err := cloudauth.Wrap(context.WithoutCancel(ctx), cfg.Auth, sink.NewTransport(resolver))
	if err != nil {
		return nil, fmt.Errorf("webhook auth: %w", err)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		ErrorThreshold: cfg.Breaker.ErrorThreshold,
		MinSamples:     cfg.Breaker.MinSamples,
		WindowSeconds:  cfg.Breaker.WindowSeconds,
		OpenTimeout:    cfg.Breaker.OpenTimeout,
	})
	breaker.OnStateChange = func(from, to circuitbreaker.State) {
		slog.Warn("webhook circuit breaker", "from", from.String(), "to", to.String())
		if metrics != nil {
			metrics.BreakerState.Set(float64(to))
		}
	}

	return sink.NewWebhook(sink.WebhookOptions{
		URL:     cfg.URL,
		Client:  &http.Client{Transport: rt, Timeout: cfg.Timeout},
		Breaker: breaker,
		Headers: cfg.Headers,
		Metrics: metrics,
	}), nil
}

// refreshDNS keeps the resolver cache warm until ctx is cancelled.
func refreshDNS(ctx context.Context, r *dnscache.Resolver, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Refresh(true)
		}
	}
}
