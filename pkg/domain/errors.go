package domain

import "errors"

// ErrInvalidTarget is returned when a start request names no target or an unrecognized one.
var ErrInvalidTarget = errors.New("invalid target")

// ErrInvalidAnswer is returned when an answer is not yes, no or unknown.
var ErrInvalidAnswer = errors.New("invalid answer")

// ErrStaleAnswer is returned when an answer targets a question that is no longer current.
var ErrStaleAnswer = errors.New("stale answer")

// ErrSessionBusy is returned when a session-mutating call overlaps another one.
var ErrSessionBusy = errors.New("session busy")

// ErrServiceUnavailable wraps transport and service failures of the inference service.
var ErrServiceUnavailable = errors.New("inference service unavailable")

// ErrTraceFetchFailed is returned when the rule trace snapshot could not be refreshed.
// It never invalidates the session state.
var ErrTraceFetchFailed = errors.New("trace fetch failed")

// ErrSuperseded is returned when a response arrives for a session generation
// that a restart or a new start has replaced. The response is discarded.
var ErrSuperseded = errors.New("response superseded by newer session")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")
