package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswer(t *testing.T) {
	cases := map[string]domain.Answer{
		"yes":     domain.AnswerYes,
		" Y ":     domain.AnswerYes,
		"はい":      domain.AnswerYes,
		"no":      domain.AnswerNo,
		"FALSE":   domain.AnswerNo,
		"unknown": domain.AnswerUnknown,
		"?":       domain.AnswerUnknown,
		"分からない":   domain.AnswerUnknown,
	}
	for input, want := range cases {
		got, err := domain.ParseAnswer(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := domain.ParseAnswer("maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidAnswer)
}

func TestAnswer_JSON(t *testing.T) {
	req := domain.AnswerRequest{Question: "Q1", Answer: domain.AnswerUnknown}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":"Q1","answer":null}`, string(data))

	data, err = json.Marshal(domain.AnswerRequest{Question: "Q1", Answer: domain.AnswerNo})
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":"Q1","answer":false}`, string(data))

	_, err = json.Marshal(domain.AnswerRequest{Question: "Q1"})
	assert.Error(t, err, "unset answers must never reach the wire")

	var decoded domain.AnswerRequest
	require.NoError(t, json.Unmarshal([]byte(`{"question":"Q2","answer":"unknown"}`), &decoded))
	assert.Equal(t, domain.AnswerUnknown, decoded.Answer)

	require.NoError(t, json.Unmarshal([]byte(`{"question":"Q2","answer":true}`), &decoded))
	assert.Equal(t, domain.AnswerYes, decoded.Answer)

	var absent domain.AnswerRequest
	require.NoError(t, json.Unmarshal([]byte(`{"question":"Q2"}`), &absent))
	assert.False(t, absent.Answer.Valid(), "absence is not unknown")

	assert.Error(t, json.Unmarshal([]byte(`{"answer":3}`), &decoded))
}
