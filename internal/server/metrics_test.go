package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugener/boatload/internal/telemetry"
)

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	h := New(Deps{
		Processor:      &fakeProcessor{limit: 1},
		Metrics:        telemetry.NewMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	do(t, h, http.MethodPost, "/v1/events", `{"type":"a"}`)
	do(t, h, http.MethodPost, "/v1/events", `{"type":"a"}`) // overflows
	do(t, h, http.MethodPost, "/v1/events", `nope`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`boatload_requests_total{method="POST",path="/v1/events",status="202"} 1`,
		`boatload_requests_total{method="POST",path="/v1/events",status="503"} 1`,
		`boatload_events_accepted_total{client="anonymous"} 1`,
		`boatload_events_rejected_total{reason="overflow"} 1`,
		`boatload_events_rejected_total{reason="invalid"} 1`,
		"boatload_request_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRoutePatternUnmatched(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	h := New(Deps{
		Processor:      &fakeProcessor{},
		Metrics:        telemetry.NewMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	do(t, h, http.MethodGet, "/no/such/path/123", "")

	body := do(t, h, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(body, `path="unmatched"`) {
		t.Error("unknown paths should share one label value")
	}
	if strings.Contains(body, "/no/such/path/123") {
		t.Error("raw path leaked into labels")
	}
}
