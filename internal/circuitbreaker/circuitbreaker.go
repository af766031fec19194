// Package circuitbreaker guards a downstream sink with a sliding-window
// error-rate breaker. While open, calls fail immediately so a batch flush
// against an unhealthy endpoint returns in nanoseconds instead of waiting out
// a network timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all calls through.
	StateClosed State = iota
	// StateOpen rejects all calls.
	StateOpen
	// StateHalfOpen allows a single probe call.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.5)
	MinSamples     int           // minimum calls in the window before the breaker can open
	WindowSeconds  int           // sliding window duration in seconds (max 60)
	OpenTimeout    time.Duration // time in OPEN before a probe is allowed
}

// DefaultConfig returns sensible defaults for a webhook sink.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     5,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

// bucket holds error and call counts for a 1-second slot.
type bucket struct {
	errors float64 // weighted error sum
	total  int
}

// slidingWindow is a fixed-size ring of 1-second buckets.
type slidingWindow struct {
	buckets  [60]bucket
	size     int   // active buckets (== window seconds)
	head     int   // index of current bucket
	headTime int64 // unix seconds of head bucket
}

func newSlidingWindow(windowSeconds int) slidingWindow {
	if windowSeconds <= 0 || windowSeconds > 60 {
		windowSeconds = 60
	}
	return slidingWindow{size: windowSeconds}
}

// advance moves the head forward to nowSec, clearing buckets that fell out
// of the window.
func (w *slidingWindow) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	n := min(int(gap), w.size)
	for i := range n {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

func (w *slidingWindow) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

// errorRate returns the weighted error rate and sample count in the window.
func (w *slidingWindow) errorRate(now time.Time) (rate float64, samples int) {
	w.advance(now.Unix())
	var errs float64
	for i := range w.size {
		errs += w.buckets[i].errors
		samples += w.buckets[i].total
	}
	if samples == 0 {
		return 0, 0
	}
	return errs / float64(samples), samples
}

func (w *slidingWindow) reset() {
	*w = newSlidingWindow(w.size)
}

// Breaker is a circuit breaker state machine.
type Breaker struct {
	cfg Config
	now func() time.Time

	// OnStateChange, when set, is called (outside the lock) after every
	// transition. Set it before the breaker is shared.
	OnStateChange func(from, to State)

	mu       sync.Mutex
	state    State
	window   slidingWindow
	openedAt time.Time
	probing  bool // a half-open probe is in flight
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:    cfg,
		now:    time.Now,
		state:  StateClosed,
		window: newSlidingWindow(cfg.WindowSeconds),
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In HALF_OPEN exactly one caller
// gets through until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	allowed := b.allowLocked(b.now())
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return allowed
}

func (b *Breaker) allowLocked(now time.Time) bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record registers a call outcome with the given error weight (0 = success).
func (b *Breaker) Record(weight float64) {
	now := b.now()
	b.mu.Lock()
	from := b.state
	b.window.record(weight, now)

	switch b.state {
	case StateClosed:
		if weight > 0 {
			rate, samples := b.window.errorRate(now)
			if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
				b.state = StateOpen
				b.openedAt = now
			}
		}
	case StateHalfOpen:
		b.probing = false
		if weight > 0 {
			b.state = StateOpen
			b.openedAt = now
		} else {
			b.state = StateClosed
			b.window.reset()
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Do runs fn if the breaker allows it and records the classified outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	b.Record(ClassifyError(err))
	return err
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
