package model

import (
	"encoding/json"
	"fmt"
)

// QuestionType enumerates how a question is answered.
type QuestionType string

const (
	QuestionTypeMCQ  QuestionType = "mcq"
	QuestionTypeText QuestionType = "text"
)

// Option is one choice of a multiple-choice question. The backend sends
// options either as plain strings or as {"text": "..."} objects.
type Option struct {
	Text string `json:"text"`
}

// UnmarshalJSON accepts both the string and the object form.
func (o *Option) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Text = s
		return nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("option: %w", err)
	}
	o.Text = obj.Text
	return nil
}

// MarshalJSON always emits the plain string form.
func (o Option) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Text)
}

// Question is a read-only snapshot of one exam item for an attempt.
// Ordering is fixed by the server response.
type Question struct {
	ID           string       `json:"id" yaml:"id"`
	Section      string       `json:"section,omitempty" yaml:"section"`
	Marks        int          `json:"marks,omitempty" yaml:"marks"`
	QuestionType QuestionType `json:"question_type" yaml:"question_type"`
	Options      []Option     `json:"options,omitempty" yaml:"-"`
	QuestionText string       `json:"question_text" yaml:"question_text"`
}

// IsMCQ reports whether the question is answered by picking an option.
func (q *Question) IsMCQ() bool {
	return q.QuestionType == QuestionTypeMCQ
}

// OptionLetter returns the answer value for the option at idx ("A", "B", ...).
func OptionLetter(idx int) string {
	return string(rune('A' + idx))
}

// OptionIndex is the inverse of OptionLetter. It returns -1 for values that
// are not a single option letter.
func OptionIndex(letter string) int {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return -1
	}
	return int(letter[0] - 'A')
}
