package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Answer is the tri-state value a user gives to a question.
// The zero value is AnswerUnset and is never accepted by the controller.
type Answer uint8

const (
	AnswerUnset Answer = iota
	AnswerYes
	AnswerNo
	AnswerUnknown
)

// Valid reports whether the answer is one of yes, no or unknown.
func (a Answer) Valid() bool {
	return a == AnswerYes || a == AnswerNo || a == AnswerUnknown
}

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	case AnswerUnknown:
		return "unknown"
	default:
		return "unset"
	}
}

// ParseAnswer converts user input into an Answer.
func ParseAnswer(s string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "はい":
		return AnswerYes, nil
	case "no", "n", "false", "いいえ":
		return AnswerNo, nil
	case "unknown", "u", "?", "null", "分からない":
		return AnswerUnknown, nil
	}
	return AnswerUnset, fmt.Errorf("%w: %q", ErrInvalidAnswer, s)
}

// MarshalJSON encodes yes/no as JSON booleans and unknown as an explicit null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a {
	case AnswerYes:
		return []byte("true"), nil
	case AnswerNo:
		return []byte("false"), nil
	case AnswerUnknown:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %s", ErrInvalidAnswer, a)
}

// UnmarshalJSON accepts true, false, null and the string "unknown".
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*a = AnswerYes
		return nil
	case "false":
		*a = AnswerNo
		return nil
	case "null":
		*a = AnswerUnknown
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAnswer, data)
	}
	parsed, err := ParseAnswer(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
