package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("command stored but queue is full")
	ErrUnknownStore = errors.New("unknown store driver")
)
