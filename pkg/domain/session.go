package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Phase is the controller state derived from a session snapshot.
type Phase string

const (
	PhaseIdle           Phase = "idle"            // No target selected
	PhaseAwaitingAnswer Phase = "awaiting_answer" // A question is on screen
	PhaseFinished       Phase = "finished"        // No further question
)

// CaveatGroup lists the facts answered "unknown" that had to be assumed true
// to reach a conclusion. Operator tells how the conditions are joined.
type CaveatGroup struct {
	Conclusion string   `json:"conclusion"`
	Operator   Operator `json:"operator"`
	Conditions []string `json:"uncertain_conditions"`
}

// ServiceSession is the explicit identity passed on every inference call.
type ServiceSession struct {
	ID    string `json:"id"`
	Token string `json:"-"`
}

// Session is the full state of one consultation.
type Session struct {
	ID string `json:"id"`

	// Generation increases on every start and restart. Responses produced
	// for an older generation are discarded.
	Generation uint64 `json:"generation"`

	Targets       []Target `json:"targets,omitempty"`
	MultiTarget   bool     `json:"multi_target"`
	CurrentTarget Target   `json:"current_target,omitempty"`

	// History holds the questions asked so far, oldest first.
	History         []string `json:"history"`
	CurrentQuestion string   `json:"current_question,omitempty"`
	IsDerivable     bool     `json:"is_derivable,omitempty"`

	Answers map[string]Answer `json:"answers"`

	Conclusions       []string            `json:"conclusions"`
	TargetConclusions map[Target][]string `json:"target_conclusions,omitempty"`

	UnknownFacts        []string      `json:"unknown_facts,omitempty"`
	MissingCriticalInfo []string      `json:"missing_critical_info,omitempty"`
	Caveats             []CaveatGroup `json:"caveats,omitempty"`

	Finished         bool `json:"finished"`
	InsufficientInfo bool `json:"insufficient_info"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an idle session.
func NewSession(id string) *Session {
	return &Session{
		ID:          id,
		History:     []string{},
		Answers:     make(map[string]Answer),
		Conclusions: []string{},
	}
}

// CheckGeneration returns an error wrapping ErrSuperseded when a snapshot of
// generation next would overwrite a stored snapshot of a newer generation.
// Stores call it before every save.
func CheckGeneration(stored, next uint64) error {
	if stored > next {
		return fmt.Errorf("%w: stored generation %d is newer than %d", ErrSuperseded, stored, next)
	}
	return nil
}

// Phase derives the state machine position from the session fields.
func (s *Session) Phase() Phase {
	switch {
	case len(s.Targets) == 0:
		return PhaseIdle
	case s.Finished:
		return PhaseFinished
	default:
		return PhaseAwaitingAnswer
	}
}

// CanGoBack reports whether back would change anything.
func (s *Session) CanGoBack() bool {
	return len(s.History) > 1
}

// UnknownAnswers lists the facts answered "unknown", in the order they were asked.
func (s *Session) UnknownAnswers() []string {
	var facts []string
	seen := make(map[string]bool)
	for _, q := range s.History {
		if s.Answers[q] == AnswerUnknown && !seen[q] {
			facts = append(facts, q)
			seen[q] = true
		}
	}
	// Answers recorded for questions no longer in history (e.g. restored sessions).
	var rest []string
	for q, a := range s.Answers {
		if a == AnswerUnknown && !seen[q] {
			rest = append(rest, q)
		}
	}
	slices.Sort(rest)
	return append(facts, rest...)
}

// CaveatsFor returns the caveat groups attached to a conclusion.
func (s *Session) CaveatsFor(conclusion string) []CaveatGroup {
	var groups []CaveatGroup
	for _, g := range s.Caveats {
		if g.Conclusion == conclusion {
			groups = append(groups, g)
		}
	}
	return groups
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Targets = slices.Clone(s.Targets)
	c.History = slices.Clone(s.History)
	if c.History == nil {
		c.History = []string{}
	}
	c.Answers = maps.Clone(s.Answers)
	if c.Answers == nil {
		c.Answers = make(map[string]Answer)
	}
	c.Conclusions = slices.Clone(s.Conclusions)
	if c.Conclusions == nil {
		c.Conclusions = []string{}
	}
	if s.TargetConclusions != nil {
		c.TargetConclusions = make(map[Target][]string, len(s.TargetConclusions))
		for k, v := range s.TargetConclusions {
			c.TargetConclusions[k] = slices.Clone(v)
		}
	}
	c.UnknownFacts = slices.Clone(s.UnknownFacts)
	c.MissingCriticalInfo = slices.Clone(s.MissingCriticalInfo)
	if s.Caveats != nil {
		c.Caveats = make([]CaveatGroup, len(s.Caveats))
		for i, g := range s.Caveats {
			g.Conditions = slices.Clone(g.Conditions)
			c.Caveats[i] = g
		}
	}
	return &c
}
