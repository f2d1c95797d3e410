package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		old      *Session
		new      *Session
		wantDiff *SessionDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Session{
				ID:              "sess-1",
				Generation:      1,
				Targets:         []Target{"E"},
				History:         []string{"Q1"},
				CurrentQuestion: "Q1",
			},
			wantDiff: &SessionDiff{
				SessionID:       "sess-1",
				CurrentQuestion: &[]string{"Q1"}[0],
				History:         &HistoryDelta{Appended: []string{"Q1"}},
			},
		},
		{
			name: "No Changes",
			old: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1"},
				CurrentQuestion: "Q1",
			},
			new: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1"},
				CurrentQuestion: "Q1",
			},
			wantDiff: nil,
		},
		{
			name: "History Append",
			old: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1"},
				CurrentQuestion: "Q1",
			},
			new: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1", "Q2"},
				CurrentQuestion: "Q2",
				Answers:         map[string]Answer{"Q1": AnswerYes},
			},
			wantDiff: &SessionDiff{
				SessionID:       "sess-1",
				CurrentQuestion: &[]string{"Q2"}[0],
				History:         &HistoryDelta{Appended: []string{"Q2"}},
				Answers:         map[string]*string{"Q1": &[]string{"yes"}[0]},
			},
		},
		{
			name: "Back Pops History And Removes Answer",
			old: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1", "Q2"},
				CurrentQuestion: "Q2",
				Answers:         map[string]Answer{"Q1": AnswerYes},
			},
			new: &Session{
				ID:              "sess-1",
				Targets:         []Target{"E"},
				History:         []string{"Q1"},
				CurrentQuestion: "Q1",
				Answers:         map[string]Answer{},
			},
			wantDiff: &SessionDiff{
				SessionID:       "sess-1",
				CurrentQuestion: &[]string{"Q1"}[0],
				History:         &HistoryDelta{Popped: 1},
				Answers:         map[string]*string{"Q1": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}

			if got.SessionID != tt.wantDiff.SessionID {
				t.Errorf("Diff().SessionID = %v, want %v", got.SessionID, tt.wantDiff.SessionID)
			}
			if !reflect.DeepEqual(got.Answers, tt.wantDiff.Answers) {
				t.Errorf("Diff().Answers = %v, want %v", got.Answers, tt.wantDiff.Answers)
			}
			if !reflect.DeepEqual(got.History, tt.wantDiff.History) {
				t.Errorf("Diff().History = %+v, want %+v", got.History, tt.wantDiff.History)
			}
			if !equalPtr(got.CurrentQuestion, tt.wantDiff.CurrentQuestion) {
				t.Errorf("Diff().CurrentQuestion = %v, want %v", got.CurrentQuestion, tt.wantDiff.CurrentQuestion)
			}
		})
	}
}

func TestDiff_Finished(t *testing.T) {
	old := &Session{ID: "s", Targets: []Target{"E"}, History: []string{"Q1"}, CurrentQuestion: "Q1"}
	new := &Session{ID: "s", Targets: []Target{"E"}, History: []string{"Q1"}, Finished: true, Conclusions: []string{"Eビザ申請可"}}

	diff := Diff(old, new)
	if diff == nil {
		t.Fatal("Expected diff, got nil")
	}
	if diff.Phase == nil || *diff.Phase != PhaseFinished {
		t.Errorf("Diff().Phase = %v, want finished", diff.Phase)
	}
	if diff.Finished == nil || !*diff.Finished {
		t.Errorf("Diff().Finished = %v, want true", diff.Finished)
	}
	if !reflect.DeepEqual(diff.Conclusions, []string{"Eビザ申請可"}) {
		t.Errorf("Diff().Conclusions = %v", diff.Conclusions)
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Empty Answers Omitted", func(t *testing.T) {
		s1 := &Session{ID: "s", History: []string{"Q1"}}
		s2 := &Session{ID: "s", History: []string{"Q1", "Q2"}}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"answers"`) {
			t.Errorf("JSON should not contain 'answers' when empty, got: %s", string(bytes))
		}
	})

	t.Run("Unknown Answer By Name", func(t *testing.T) {
		s1 := &Session{ID: "s", Answers: map[string]Answer{}}
		s2 := &Session{ID: "s", Answers: map[string]Answer{"Q1": AnswerUnknown}}
		bytes, _ := json.Marshal(Diff(s1, s2))
		if !strings.Contains(string(bytes), `"answers":{"Q1":"unknown"}`) {
			t.Errorf("JSON should name the unknown answer, got: %s", string(bytes))
		}
	})

	t.Run("Removed Answers as Null", func(t *testing.T) {
		s1 := &Session{ID: "s", Answers: map[string]Answer{"Q1": AnswerNo}}
		s2 := &Session{ID: "s", Answers: map[string]Answer{}}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"answers":{"Q1":null}`) {
			t.Errorf("JSON should contain removed answer as null, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
