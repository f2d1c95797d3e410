package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/consult/pkg/domain"
)

// Call records one request received by FakeService.
type Call struct {
	Op        domain.Operation
	SessionID string
	Token     string
	Target    string
	Question  string
	Answer    domain.Answer
}

// FakeService is a scripted in-process InferenceService.
//
// The Func fields decide the responses; FakeService itself tracks the
// per-session question stack so Back behaves like the real service.
// When Gate is non-nil every call blocks until Gate yields a value or the
// context is done, and Entered (if non-nil) receives the operation first.
type FakeService struct {
	StartFunc  func(target string) (*domain.StartResponse, error)
	AnswerFunc func(question string, value domain.Answer) (*domain.AnswerResponse, error)
	TraceFunc  func(sessionID string) (*domain.TraceSnapshot, error)

	// Err, when set, fails every Start, Answer and Back call.
	Err error

	Gate    chan struct{}
	Entered chan domain.Operation

	mu     sync.Mutex
	stacks map[string][]string
	calls  []Call
}

// Calls returns the requests received so far.
func (f *FakeService) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many calls of op were received.
func (f *FakeService) CallCount(op domain.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeService) record(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	if f.stacks == nil {
		f.stacks = make(map[string][]string)
	}
	f.mu.Unlock()

	if f.Entered != nil {
		f.Entered <- c.Op
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *FakeService) Start(ctx context.Context, sess domain.ServiceSession, target string) (*domain.StartResponse, error) {
	if err := f.record(ctx, Call{Op: domain.OpStart, SessionID: sess.ID, Token: sess.Token, Target: target}); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.StartFunc == nil {
		return nil, fmt.Errorf("fake: no start script")
	}
	resp, err := f.StartFunc(target)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.stacks[sess.ID] = nil
	if resp.NextQuestion != "" {
		f.stacks[sess.ID] = []string{resp.NextQuestion}
	}
	f.mu.Unlock()
	return resp, nil
}

func (f *FakeService) Answer(ctx context.Context, sess domain.ServiceSession, question string, value domain.Answer) (*domain.AnswerResponse, error) {
	if err := f.record(ctx, Call{Op: domain.OpAnswer, SessionID: sess.ID, Token: sess.Token, Question: question, Answer: value}); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.AnswerFunc == nil {
		return nil, fmt.Errorf("fake: no answer script")
	}
	resp, err := f.AnswerFunc(question, value)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	stack := f.stacks[sess.ID]
	if resp.NextQuestion != "" && !contains(stack, resp.NextQuestion) {
		f.stacks[sess.ID] = append(stack, resp.NextQuestion)
	}
	f.mu.Unlock()
	return resp, nil
}

func (f *FakeService) Back(ctx context.Context, sess domain.ServiceSession) (*domain.BackResponse, error) {
	if err := f.record(ctx, Call{Op: domain.OpBack, SessionID: sess.ID, Token: sess.Token}); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	stack := f.stacks[sess.ID]
	if len(stack) <= 1 {
		return &domain.BackResponse{}, nil
	}
	stack = stack[:len(stack)-1]
	f.stacks[sess.ID] = stack
	return &domain.BackResponse{CurrentQuestion: stack[len(stack)-1]}, nil
}

func (f *FakeService) Trace(ctx context.Context, sess domain.ServiceSession) (*domain.TraceSnapshot, error) {
	if err := f.record(ctx, Call{Op: domain.OpTrace, SessionID: sess.ID, Token: sess.Token}); err != nil {
		return nil, err
	}
	if f.TraceFunc == nil {
		return &domain.TraceSnapshot{}, nil
	}
	return f.TraceFunc(sess.ID)
}

// Linear returns a FakeService that asks questions in order regardless of
// the answers and finishes with conclusion once every question is answered.
// A "no" to any question finishes early without conclusions.
func Linear(conclusion string, questions ...string) *FakeService {
	next := make(map[string]string, len(questions))
	for i, q := range questions {
		if i+1 < len(questions) {
			next[q] = questions[i+1]
		}
	}
	first := ""
	if len(questions) > 0 {
		first = questions[0]
	}

	return &FakeService{
		StartFunc: func(target string) (*domain.StartResponse, error) {
			return &domain.StartResponse{NextQuestion: first, CurrentTarget: target}, nil
		},
		AnswerFunc: func(question string, value domain.Answer) (*domain.AnswerResponse, error) {
			if value == domain.AnswerNo {
				return &domain.AnswerResponse{IsFinished: true, Conclusions: []string{}}, nil
			}
			if n := next[question]; n != "" {
				return &domain.AnswerResponse{NextQuestion: n, Conclusions: []string{}}, nil
			}
			resp := &domain.AnswerResponse{IsFinished: true, Conclusions: []string{conclusion}}
			if value == domain.AnswerUnknown {
				resp.UnknownFacts = []string{question}
				resp.UncertainFactsLogic = &domain.UncertainLogic{Groups: []domain.CaveatGroup{{
					Conclusion: conclusion,
					Operator:   domain.OperatorAnd,
					Conditions: []string{question},
				}}}
			}
			return resp, nil
		},
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
