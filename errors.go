package boatload

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the processor.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrQueueOverflow = errors.New("queue overflow")
	ErrClosed        = errors.New("processor shut down")
)

// QueueOverflowError is returned by Push when the queue already holds
// MaxQueueSize messages. The rejected item was not enqueued.
type QueueOverflowError struct {
	Max int
}

func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("max queue size (%d messages) reached", e.Max)
}

// Is reports whether target is ErrQueueOverflow.
func (e *QueueOverflowError) Is(target error) bool {
	return target == ErrQueueOverflow
}
