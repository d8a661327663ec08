package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstream        = errors.New("upstream unavailable")
	ErrLockHeld        = errors.New("lock already held")
	ErrConfig          = errors.New("invalid configuration")
	ErrMalformedRecord = errors.New("malformed market record")
	ErrCycleBusy       = errors.New("scan cycle already running")
)
