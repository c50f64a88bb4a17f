package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("upstream server error")
	ErrRetryExhausted = errors.New("retries exhausted")
)
