package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// statusError is implemented by errors carrying an HTTP status code.
type statusError interface {
	HTTPStatus() int
}

// ClassifyError returns the error weight of a sink call.
//
// Weights:
//   - nil -> 0
//   - timeout -> 1.5
//   - 429 -> 0.5
//   - 5xx -> 1.0
//   - other 4xx -> 0 (our request was bad, the endpoint is healthy)
//   - anything else (connection refused, DNS) -> 1.0
func ClassifyError(err error) float64 {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var se statusError
	if errors.As(err, &se) {
		return classifyStatus(se.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == http.StatusTooManyRequests:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
