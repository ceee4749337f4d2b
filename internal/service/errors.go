package service

import "errors"

// Common service errors.
var (
	// ErrDispatchFailed is returned when the external processor rejected or
	// never received the dispatch call. The submission as a whole fails; the
	// provisional row is removed so no orphan accumulates.
	ErrDispatchFailed = errors.New("failed to dispatch research run")

	// ErrResultFetchFailed is returned when a completed run's result document
	// could not be retrieved. The notification or sweep iteration aborts for
	// that company; the reconciler remains the safety net.
	ErrResultFetchFailed = errors.New("failed to fetch run result")
)
