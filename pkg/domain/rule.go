package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator combines the conditions of a rule.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// Join is the connective used when rendering conditions of this operator.
func (o Operator) Join() string {
	if strings.EqualFold(string(o), string(OperatorOr)) {
		return "または"
	}
	return "かつ"
}

// ConditionStatus is the evaluation state of a single rule condition.
type ConditionStatus string

const (
	StatusSatisfied    ConditionStatus = "satisfied"
	StatusNotSatisfied ConditionStatus = "not_satisfied"
	StatusUncertain    ConditionStatus = "uncertain"
	StatusUnknown      ConditionStatus = "unknown"
)

// UnmarshalJSON maps unrecognized or empty statuses to StatusUnknown.
func (s *ConditionStatus) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid condition status %s: %w", data, err)
	}
	if raw == nil {
		*s = StatusUnknown
		return nil
	}
	switch v := ConditionStatus(*raw); v {
	case StatusSatisfied, StatusNotSatisfied, StatusUncertain:
		*s = v
	default:
		*s = StatusUnknown
	}
	return nil
}

// Condition is one fact test inside a rule.
type Condition struct {
	FactName string          `json:"fact_name"`
	Status   ConditionStatus `json:"status"`
	// IsDerivable means another rule can produce this fact.
	IsDerivable bool `json:"is_derivable"`
}

// UnmarshalJSON defaults the status to unknown when the key is absent.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	aux := plain{Status: StatusUnknown}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Condition(aux)
	return nil
}

// Rule is a read-only snapshot of a rule as evaluated by the inference service.
type Rule struct {
	RuleID            string      `json:"rule_id"`
	Operator          Operator    `json:"operator"`
	Conditions        []Condition `json:"conditions"`
	Conclusion        string      `json:"conclusion"`
	ConclusionDerived bool        `json:"conclusion_derived"`
	IsFired           bool        `json:"is_fired"`
	// IsFireable is false when no assignment of the remaining unknowns can fire the rule.
	IsFireable bool `json:"is_fireable"`
}

// UnmarshalJSON defaults is_fireable to true when the key is absent.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := plain{IsFireable: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Rule(aux)
	return nil
}

// References reports whether any condition tests fact.
func (r *Rule) References(fact string) bool {
	if fact == "" {
		return false
	}
	for _, c := range r.Conditions {
		if c.FactName == fact {
			return true
		}
	}
	return false
}

// HasEvaluatedCondition reports whether any condition left the unknown status.
func (r *Rule) HasEvaluatedCondition() bool {
	for _, c := range r.Conditions {
		if c.Status != StatusUnknown {
			return true
		}
	}
	return false
}

// TraceSnapshot is the raw rule state returned by the inference service.
type TraceSnapshot struct {
	Rules               []Rule   `json:"rules"`
	FiredRules          []string `json:"fired_rules"`
	CurrentQuestionFact string   `json:"current_question_fact"`
}

// DisplayState is the closed set of trace states a rule can be shown in.
type DisplayState uint8

const (
	StatePending DisplayState = iota
	StateEvaluating
	StateUnfireable
	StateFired
)

var displayStateNames = [...]string{
	StatePending:    "pending",
	StateEvaluating: "evaluating",
	StateUnfireable: "unfireable",
	StateFired:      "fired",
}

func (s DisplayState) String() string {
	if int(s) < len(displayStateNames) {
		return displayStateNames[s]
	}
	return fmt.Sprintf("DisplayState(%d)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s DisplayState) MarshalText() ([]byte, error) {
	if int(s) >= len(displayStateNames) {
		return nil, fmt.Errorf("invalid display state %d", s)
	}
	return []byte(displayStateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DisplayState) UnmarshalText(text []byte) error {
	for i, name := range displayStateNames {
		if name == string(text) {
			*s = DisplayState(i)
			return nil
		}
	}
	return fmt.Errorf("invalid display state %q", text)
}
