package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/consult/pkg/domain"
)

// LogHooks returns lifecycle hooks that write structured audit logs.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "session_transition",
				"session_id", e.SessionID,
				"op", e.Operation,
				"generation", e.Generation,
				"from", e.From,
				"to", e.To,
			)
		},
		OnServiceCall: func(ctx context.Context, e *domain.CallEvent) {
			level := slog.LevelDebug
			if e.IsError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "service_call",
				"session_id", e.SessionID,
				"op", e.Operation,
				"generation", e.Generation,
				"duration", e.Duration,
				"is_error", e.IsError,
				"discarded", e.Discarded,
			)
		},
		OnTraceFetch: func(ctx context.Context, e *domain.TraceEvent) {
			logger.DebugContext(ctx, "trace_fetch",
				"session_id", e.SessionID,
				"relevant", e.Relevant,
				"fired", e.Fired,
				"is_error", e.IsError,
			)
		},
	}
}

// Combine fans every event out to all hooks, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var combined domain.LifecycleHooks
	for _, h := range hooks {
		if h.OnTransition != nil {
			prev, next := combined.OnTransition, h.OnTransition
			combined.OnTransition = func(ctx context.Context, e *domain.TransitionEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
		if h.OnServiceCall != nil {
			prev, next := combined.OnServiceCall, h.OnServiceCall
			combined.OnServiceCall = func(ctx context.Context, e *domain.CallEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
		if h.OnTraceFetch != nil {
			prev, next := combined.OnTraceFetch, h.OnTraceFetch
			combined.OnTraceFetch = func(ctx context.Context, e *domain.TraceEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				next(ctx, e)
			}
		}
	}
	return combined
}
