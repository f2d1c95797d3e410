package trace

import (
	"slices"

	"github.com/aretw0/consult/pkg/domain"
)

// Entry is a relevant rule together with its derived display state.
type Entry struct {
	Rule  domain.Rule         `json:"rule"`
	State domain.DisplayState `json:"state"`
	// Focused marks rules that test the fact currently being asked.
	Focused bool `json:"focused"`
}

// Result is the classified view of a trace snapshot.
type Result struct {
	// Relevant holds the rules worth displaying, in input order.
	Relevant   []Entry `json:"relevant"`
	FiredCount int     `json:"fired_count"`
	// Total is the number of rules in the snapshot, relevant or not.
	Total int `json:"total"`
}

// Classify derives the display state of every rule in play.
//
// A rule is relevant when it fired, when one of its conditions was evaluated,
// when it tests currentFact, or when it tests a conclusion that is fired or
// still reachable through currentFact. The last clause keeps rules chained
// behind the answered fact visible before their own conditions change.
// An empty currentFact disables fact matching.
func Classify(rules []domain.Rule, firedRuleIDs []string, currentFact string) Result {
	fired := make(map[string]bool, len(firedRuleIDs))
	for _, id := range firedRuleIDs {
		if id != "" {
			fired[id] = true
		}
	}

	potential := make(map[string]bool)
	for i := range rules {
		r := &rules[i]
		if fired[r.RuleID] || (r.IsFireable && r.References(currentFact)) {
			potential[r.Conclusion] = true
		}
	}

	res := Result{
		Relevant:   []Entry{},
		FiredCount: len(fired),
		Total:      len(rules),
	}
	for i := range rules {
		r := &rules[i]
		if !isRelevant(r, fired, potential, currentFact) {
			continue
		}
		rule := *r
		rule.Conditions = slices.Clone(r.Conditions)
		res.Relevant = append(res.Relevant, Entry{
			Rule:    rule,
			State:   stateOf(r, currentFact),
			Focused: r.References(currentFact),
		})
	}
	return res
}

func isRelevant(r *domain.Rule, fired, potential map[string]bool, currentFact string) bool {
	if r.IsFired || fired[r.RuleID] {
		return true
	}
	if r.HasEvaluatedCondition() || r.References(currentFact) {
		return true
	}
	for _, c := range r.Conditions {
		if potential[c.FactName] {
			return true
		}
	}
	return false
}

// stateOf applies the display priority: fired, unfireable, evaluating, pending.
func stateOf(r *domain.Rule, currentFact string) domain.DisplayState {
	switch {
	case r.IsFired:
		return domain.StateFired
	case !r.IsFireable:
		return domain.StateUnfireable
	case r.References(currentFact) || r.HasEvaluatedCondition():
		return domain.StateEvaluating
	default:
		return domain.StatePending
	}
}

// ClassifySnapshot classifies a snapshot using its own current question fact,
// falling back to fallbackFact when the snapshot does not carry one.
func ClassifySnapshot(snap *domain.TraceSnapshot, fallbackFact string) Result {
	if snap == nil {
		return Result{Relevant: []Entry{}}
	}
	fact := snap.CurrentQuestionFact
	if fact == "" {
		fact = fallbackFact
	}
	return Classify(snap.Rules, snap.FiredRules, fact)
}

// ByState returns the relevant entries in the given state.
func (r Result) ByState(state domain.DisplayState) []Entry {
	var out []Entry
	for _, e := range r.Relevant {
		if e.State == state {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the relevant entry for a rule id.
func (r Result) Find(ruleID string) (Entry, bool) {
	for _, e := range r.Relevant {
		if e.Rule.RuleID == ruleID {
			return e, true
		}
	}
	return Entry{}, false
}
