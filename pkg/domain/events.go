package domain

import (
	"context"
	"time"
)

// Operation names a session operation.
type Operation string

const (
	OpStart   Operation = "start"
	OpAnswer  Operation = "answer"
	OpBack    Operation = "back"
	OpRestart Operation = "restart"
	OpTrace   Operation = "trace"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Operation  Operation `json:"operation"`
	Generation uint64    `json:"generation"`
}

// TransitionEvent is emitted after an operation changed the session.
type TransitionEvent struct {
	EventBase
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// CallEvent is emitted after every inference service roundtrip.
type CallEvent struct {
	EventBase
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
	// Discarded is set when the response belonged to a superseded generation.
	Discarded bool `json:"discarded,omitempty"`
}

// TraceEvent is emitted after a trace refresh attempt.
type TraceEvent struct {
	EventBase
	Relevant int  `json:"relevant"`
	Fired    int  `json:"fired"`
	IsError  bool `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for session observability.
type LifecycleHooks struct {
	OnTransition  func(context.Context, *TransitionEvent)
	OnServiceCall func(context.Context, *CallEvent)
	OnTraceFetch  func(context.Context, *TraceEvent)
}
