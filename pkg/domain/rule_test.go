package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceSnapshot_Decode(t *testing.T) {
	payload := `{
		"rules": [
			{"rule_id": "R1", "operator": "AND", "conclusion": "X",
			 "conditions": [{"fact_name": "Q1", "status": "satisfied", "is_derivable": false},
			                {"fact_name": "Q2", "status": "weird"}],
			 "conclusion_derived": true, "is_fired": true, "is_fireable": true},
			{"rule_id": "R2", "operator": "OR", "conclusion": "Y",
			 "conditions": [{"fact_name": "X", "status": null, "is_derivable": true}]}
		],
		"fired_rules": ["R1"],
		"current_question_fact": "Q2"
	}`

	var snap domain.TraceSnapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &snap))

	require.Len(t, snap.Rules, 2)
	assert.Equal(t, domain.StatusSatisfied, snap.Rules[0].Conditions[0].Status)
	assert.Equal(t, domain.StatusUnknown, snap.Rules[0].Conditions[1].Status)
	assert.True(t, snap.Rules[1].IsFireable, "is_fireable defaults to true when absent")
	assert.Equal(t, domain.StatusUnknown, snap.Rules[1].Conditions[0].Status)
	assert.True(t, snap.Rules[1].Conditions[0].IsDerivable)
	assert.Equal(t, "Q2", snap.CurrentQuestionFact)

	assert.True(t, snap.Rules[0].References("Q2"))
	assert.False(t, snap.Rules[0].References(""))
	assert.True(t, snap.Rules[0].HasEvaluatedCondition())
	assert.False(t, snap.Rules[1].HasEvaluatedCondition())
}

func TestDisplayState_Text(t *testing.T) {
	for _, s := range []domain.DisplayState{domain.StateFired, domain.StateEvaluating, domain.StateUnfireable, domain.StatePending} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back domain.DisplayState
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s domain.DisplayState
	assert.Error(t, s.UnmarshalText([]byte("current")))
	_, err := domain.DisplayState(42).MarshalText()
	assert.Error(t, err)
}

func TestOperator_Join(t *testing.T) {
	assert.Equal(t, "かつ", domain.OperatorAnd.Join())
	assert.Equal(t, "または", domain.OperatorOr.Join())
	assert.Equal(t, "または", domain.Operator("or").Join())
}
