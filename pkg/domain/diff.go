package domain

import (
	"maps"
	"slices"
)

// SessionDiff represents the changes between two session snapshots.
// It is serialized to JSON for partial updates on stream subscribers.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Generation      *uint64 `json:"generation,omitempty"`
	Phase           *Phase  `json:"phase,omitempty"`
	CurrentQuestion *string `json:"current_question,omitempty"`
	CurrentTarget   *Target `json:"current_target,omitempty"`

	History *HistoryDelta `json:"history,omitempty"`

	// Answers contains changed or added answers by name (yes, no, unknown).
	// Removed answers are present with a nil value.
	Answers map[string]*string `json:"answers,omitempty"`

	// Conclusions is the full replacement list when it changed.
	Conclusions []string `json:"conclusions,omitempty"`

	Finished         *bool `json:"finished,omitempty"`
	InsufficientInfo *bool `json:"insufficient_info,omitempty"`
}

// HistoryDelta represents changes to the question history.
// Popped entries are removed before Appended entries are added.
type HistoryDelta struct {
	Popped   int      `json:"popped,omitempty"`
	Appended []string `json:"appended,omitempty"`
}

// Diff calculates the difference between oldSession and newSession.
// If oldSession is nil, it returns a diff representing the entire newSession.
func Diff(oldSession, newSession *Session) *SessionDiff {
	if newSession == nil {
		return nil
	}
	if oldSession == nil {
		oldSession = &Session{}
	}

	diff := &SessionDiff{SessionID: newSession.ID}

	if oldSession.Generation != newSession.Generation {
		diff.Generation = &newSession.Generation
	}
	if p := newSession.Phase(); oldSession.Phase() != p {
		diff.Phase = &p
	}
	if oldSession.CurrentQuestion != newSession.CurrentQuestion {
		diff.CurrentQuestion = &newSession.CurrentQuestion
	}
	if oldSession.CurrentTarget != newSession.CurrentTarget {
		diff.CurrentTarget = &newSession.CurrentTarget
	}
	if oldSession.Finished != newSession.Finished {
		diff.Finished = &newSession.Finished
	}
	if oldSession.InsufficientInfo != newSession.InsufficientInfo {
		diff.InsufficientInfo = &newSession.InsufficientInfo
	}
	if !slices.Equal(oldSession.Conclusions, newSession.Conclusions) {
		diff.Conclusions = slices.Clone(newSession.Conclusions)
		if diff.Conclusions == nil {
			diff.Conclusions = []string{}
		}
	}

	diff.History = diffHistory(oldSession.History, newSession.History)
	diff.Answers = diffAnswers(oldSession.Answers, newSession.Answers)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffAnswers(old, new map[string]Answer) map[string]*string {
	if maps.Equal(old, new) {
		return nil
	}
	delta := make(map[string]*string)
	for k, v := range new {
		if ov, ok := old[k]; !ok || ov != v {
			name := v.String()
			delta[k] = &name
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			delta[k] = nil
		}
	}
	return delta
}

// diffHistory expresses the change as pops followed by appends from the
// longest common prefix.
func diffHistory(old, new []string) *HistoryDelta {
	common := 0
	for common < len(old) && common < len(new) && old[common] == new[common] {
		common++
	}
	if common == len(old) && common == len(new) {
		return nil
	}
	return &HistoryDelta{
		Popped:   len(old) - common,
		Appended: slices.Clone(new[common:]),
	}
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.Generation == nil &&
		d.Phase == nil &&
		d.CurrentQuestion == nil &&
		d.CurrentTarget == nil &&
		d.History == nil &&
		len(d.Answers) == 0 &&
		d.Conclusions == nil &&
		d.Finished == nil &&
		d.InsufficientInfo == nil
}
