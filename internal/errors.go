package relay

import "errors"

// Sentinel errors for the relay domain.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("service unavailable")
	ErrCircuitOpen  = errors.New("circuit open")
	ErrSinkFailed   = errors.New("sink failed")
)
