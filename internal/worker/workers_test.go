package worker

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/eugener/boatload/internal/ratelimit"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}

type fakeQueue struct{ n atomic.Int64 }

func (q *fakeQueue) QueueLen() int { return int(q.n.Load()) }

func TestQueueSampler(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	q.n.Store(4)
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "q"})
	w := NewQueueSampler(q, g, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for gaugeValue(t, g) != 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	q.n.Store(9)
	for gaugeValue(t, g) != 9 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if v := gaugeValue(t, g); v != 9 {
		t.Errorf("gauge = %v, want 9", v)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

type fakePurgeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (s *fakePurgeStore) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	return s.n, s.err
}

func TestRetentionWorkerPurge(t *testing.T) {
	t.Parallel()

	store := &fakePurgeStore{n: 3}
	purged := prometheus.NewCounter(prometheus.CounterOpts{Name: "purged"})
	w := NewRetentionWorker(store, 24*time.Hour, time.Hour, purged)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.purge(context.Background())

	if len(store.cutoffs) != 1 || !store.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("cutoffs = %v, want [%v]", store.cutoffs, now.Add(-24*time.Hour))
	}
	var m dto.Metric
	_ = purged.Write(&m)
	if m.GetCounter().GetValue() != 3 {
		t.Errorf("purged = %v, want 3", m.GetCounter().GetValue())
	}
}

func TestRetentionWorkerErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	store := &fakePurgeStore{err: errors.New("locked")}
	w := NewRetentionWorker(store, time.Hour, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.cutoffs)
		store.mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.cutoffs) < 3 {
		t.Errorf("purges = %d, want >= 3 despite errors", len(store.cutoffs))
	}
}

func TestLimiterJanitor(t *testing.T) {
	t.Parallel()

	reg := ratelimit.NewRegistry()
	reg.GetOrCreate("idle", 60)
	w := NewLimiterJanitor(reg, time.Nanosecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if reg.Len() != 0 {
		t.Errorf("limiters = %d, want 0", reg.Len())
	}
}

func TestHTTPServerServesAndShutsDown(t *testing.T) {
	t.Parallel()

	srv := &http.Server{
		Addr: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "hi")
		}),
	}
	w := NewHTTPServer(srv, time.Second)
	addrCh := make(chan string, 1)
	w.listen = func(network, addr string) (net.Listener, error) {
		ln, err := net.Listen(network, addr)
		if err == nil {
			addrCh <- ln.Addr().String()
		}
		return ln, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "hi" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHTTPServerListenError(t *testing.T) {
	t.Parallel()

	w := NewHTTPServer(&http.Server{Addr: "127.0.0.1:0"}, time.Second)
	w.listen = func(string, string) (net.Listener, error) { return nil, errors.New("address in use") }
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}
