package boatload

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTimer_PushesProcessAfterInterval(t *testing.T) {
	t.Parallel()
	q := newQueue[int](10)
	tm := &timer[int]{queue: q, interval: 20 * time.Millisecond, logger: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tm.run(ctx)
		close(done)
	}()

	got := make(chan message[int], 1)
	go func() { got <- q.pop() }()

	select {
	case m := <-got:
		if m.op != opProcess || m.trigger != TriggerInterval {
			t.Errorf("message = {%v %v}, want {process interval}", m.op, m.trigger)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not stop after cancel")
	}
}

func TestTimer_ZeroIntervalNeverFires(t *testing.T) {
	t.Parallel()
	q := newQueue[int](10)
	tm := &timer[int]{queue: q, interval: 0, logger: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tm.run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
	select {
	case <-done:
		t.Fatal("idle timer exited before cancel")
	default:
	}

	cancel()
	<-done
}

func TestTimer_StopsWhenQueueClosed(t *testing.T) {
	t.Parallel()
	q := newQueue[int](10)
	q.pushControl(opShutdown, TriggerShutdown)
	tm := &timer[int]{queue: q, interval: 5 * time.Millisecond, logger: discardLogger()}

	done := make(chan struct{})
	go func() {
		tm.run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer kept running against a closed queue")
	}
}

func TestTimer_RecoversPanic(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	// A nil queue makes the first tick panic.
	tm := &timer[int]{interval: time.Millisecond, logger: slog.New(slog.NewTextHandler(&buf, nil))}

	done := make(chan struct{})
	go func() {
		tm.run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not exit after panic")
	}
	out := buf.String()
	if !strings.Contains(out, "timer stopped unexpectedly") || !strings.Contains(out, "level=ERROR") {
		t.Errorf("expected error-level recovery log, got: %s", out)
	}
}
