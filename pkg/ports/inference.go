package ports

import (
	"context"

	"github.com/aretw0/consult/pkg/domain"
)

// InferenceService is the remote forward-chaining service that owns the rule
// base and decides which question comes next. Every call receives the explicit
// ServiceSession identifying the consultation and its credentials.
type InferenceService interface {
	// Start begins a consultation for a single target id or "ALL".
	Start(ctx context.Context, sess domain.ServiceSession, target string) (*domain.StartResponse, error)

	// Answer records the answer to a question and returns the next step.
	Answer(ctx context.Context, sess domain.ServiceSession, question string, value domain.Answer) (*domain.AnswerResponse, error)

	// Back asks the service to return to the previous question.
	Back(ctx context.Context, sess domain.ServiceSession) (*domain.BackResponse, error)

	// Trace returns the current rule evaluation snapshot.
	Trace(ctx context.Context, sess domain.ServiceSession) (*domain.TraceSnapshot, error)
}
