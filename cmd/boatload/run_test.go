package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/config"
	"github.com/eugener/boatload/internal/sink"
)

func TestSampleConfigLoads(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("../../configs/boatload.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.MaxQueueSize != 10000 {
		t.Errorf("MaxQueueSize = %d, want 10000", cfg.Batch.MaxQueueSize)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].Name != "ingest" {
		t.Errorf("tokens = %+v", cfg.Auth.Tokens)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"JSON", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"", "msg=hello"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		newLogger(config.LogConfig{Level: "debug", Format: tt.format}, &buf).Debug("hello")
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("format %q: output %q missing %q", tt.format, buf.String(), tt.want)
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn"}, &buf)
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewWebhookSink(t *testing.T) {
	t.Parallel()
	got := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wh, err := newWebhookSink(ctx, config.WebhookConfig{
		URL:     srv.URL,
		Timeout: 5 * time.Second,
		Auth:    &config.WebhookAuth{Type: "api_key", APIKey: "k", Prefix: "Bearer "},
		Breaker: config.BreakerConfig{ErrorThreshold: 0.5, MinSamples: 5, WindowSeconds: 60, OpenTimeout: time.Second},
		Headers: map[string]string{"X-Source": "test"},
	}, nil)
	if err != nil {
		t.Fatalf("newWebhookSink: %v", err)
	}

	events := []relay.Event{{ID: "e1", Type: "click", Payload: json.RawMessage(`{}`)}}
	if err := wh.Deliver(ctx, "b1", events); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case r := <-got:
		if h := r.Header.Get("Authorization"); h != "Bearer k" {
			t.Errorf("Authorization = %q", h)
		}
		if h := r.Header.Get("X-Source"); h != "test" {
			t.Errorf("X-Source = %q", h)
		}
		if h := r.Header.Get(sink.BatchIDHeader); h != "b1" {
			t.Errorf("batch id = %q", h)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestNewWebhookSinkUnknownAuth(t *testing.T) {
	t.Parallel()
	_, err := newWebhookSink(context.Background(), config.WebhookConfig{
		URL:  "http://127.0.0.1:1",
		Auth: &config.WebhookAuth{Type: "kerberos"},
	}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

type fakeShutdowner struct{ wait time.Duration }

func (f fakeShutdowner) Shutdown(ctx context.Context) error {
	select {
	case <-time.After(f.wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestDrainClosesStoreAfterFlush(t *testing.T) {
	t.Parallel()
	var store closeCounter
	if err := drain(fakeShutdowner{}, &store, time.Second); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if store.closed != 1 {
		t.Errorf("closed = %d, want 1", store.closed)
	}
}

func TestDrainTimeoutLeavesStoreOpen(t *testing.T) {
	t.Parallel()
	var store closeCounter
	err := drain(fakeShutdowner{wait: time.Minute}, &store, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if store.closed != 0 {
		t.Errorf("store closed while the final flush was still running")
	}
}
