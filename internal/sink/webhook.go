package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	relay "github.com/eugener/boatload/internal"
	"github.com/eugener/boatload/internal/circuitbreaker"
	"github.com/eugener/boatload/internal/telemetry"
)

// BatchIDHeader carries the flush ID on webhook deliveries.
const BatchIDHeader = "X-Boatload-Batch-Id"

// NewTransport returns an HTTP transport tuned for repeated deliveries to one
// host. When resolver is non-nil, DNS lookups go through its cache.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error returns the status and the start of the response body.
func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the status code for breaker classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// WebhookOptions configures a Webhook sink. Client and Breaker are optional.
type WebhookOptions struct {
	URL     string
	Client  *http.Client
	Breaker *circuitbreaker.Breaker
	Headers map[string]string
	Metrics *telemetry.Metrics
}

// Webhook POSTs each batch as a JSON array of events.
type Webhook struct {
	url     string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	headers map[string]string
	metrics *telemetry.Metrics
}

// NewWebhook creates a Webhook sink.
func NewWebhook(opts WebhookOptions) *Webhook {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{
		url:     opts.URL,
		http:    client,
		breaker: opts.Breaker,
		headers: opts.Headers,
		metrics: opts.Metrics,
	}
}

// Name returns "webhook".
func (w *Webhook) Name() string { return "webhook" }

// Deliver implements Sink. While the breaker is open it fails with
// relay.ErrCircuitOpen without touching the network.
func (w *Webhook) Deliver(ctx context.Context, batchID string, events []relay.Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("webhook: marshal batch: %w", err)
	}

	send := func() error { return w.post(ctx, batchID, body) }
	if w.breaker != nil {
		err = w.breaker.Do(send)
	} else {
		err = send()
	}

	switch {
	case err == nil:
		w.observe("ok")
		return nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		w.observe("rejected")
		return fmt.Errorf("webhook: %w", relay.ErrCircuitOpen)
	default:
		w.observe("error")
		return err
	}
}

func (w *Webhook) post(ctx context.Context, batchID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "boatload")
	req.Header.Set(BatchIDHeader, batchID)

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

func (w *Webhook) observe(result string) {
	if w.metrics != nil {
		w.metrics.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}
