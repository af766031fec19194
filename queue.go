package boatload

import "sync"

// op is the message discriminant. The set is closed; the worker treats any
// other value as an internal bug.
type op uint8

const (
	opItem op = iota + 1
	opProcess
	opShutdown
)

func (o op) String() string {
	switch o {
	case opItem:
		return "item"
	case opProcess:
		return "process"
	case opShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// message is one queue entry. payload is set for opItem only; trigger for
// opProcess only.
type message[T any] struct {
	op      op
	trigger Trigger
	payload T
}

// queue is a FIFO of messages with a bound that applies to items only.
// Control messages are always admitted so a full queue can still be flushed
// or shut down.
type queue[T any] struct {
	max int

	mu      sync.Mutex
	pending []message[T]
	closed  bool

	// ready holds a token whenever pending may be non-empty.
	ready chan struct{}
}

func newQueue[T any](max int) *queue[T] {
	return &queue[T]{
		max:   max,
		ready: make(chan struct{}, 1),
	}
}

// pushItem enqueues an item, failing immediately when the queue is full.
func (q *queue[T]) pushItem(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if len(q.pending) >= q.max {
		q.mu.Unlock()
		return &QueueOverflowError{Max: q.max}
	}
	q.pending = append(q.pending, message[T]{op: opItem, payload: v})
	q.mu.Unlock()
	q.signal()
	return nil
}

// pushControl enqueues a process or shutdown message regardless of the bound.
// Admitting opShutdown closes the queue to further pushes.
func (q *queue[T]) pushControl(o op, t Trigger) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if o == opShutdown {
		q.closed = true
	}
	q.pending = append(q.pending, message[T]{op: o, trigger: t})
	q.mu.Unlock()
	q.signal()
	return nil
}

// put enqueues m without any checks. Only used to inject messages in tests.
func (q *queue[T]) put(m message[T]) {
	q.mu.Lock()
	q.pending = append(q.pending, m)
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a message is available and returns the oldest one.
func (q *queue[T]) pop() message[T] {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			m := q.pending[0]
			var zero message[T]
			q.pending[0] = zero
			q.pending = q.pending[1:]
			if len(q.pending) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return m
		}
		q.mu.Unlock()
		<-q.ready
	}
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	n := len(q.pending)
	q.mu.Unlock()
	return n
}

func (q *queue[T]) isClosed() bool {
	q.mu.Lock()
	c := q.closed
	q.mu.Unlock()
	return c
}
