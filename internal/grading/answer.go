package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// AnswerValue is the tagged union of answer shapes. The evaluator dispatches
// on the concrete variant rather than sniffing raw payloads.
type AnswerValue interface {
	answerKind() string
}

// ChoiceAnswer answers multiple-choice and true-false questions.
type ChoiceAnswer struct {
	SelectedID string `json:"selected_id"`
}

// FillBlankAnswer answers fill-blank questions.
type FillBlankAnswer struct {
	Text string `json:"text"`
}

// MatchingAnswer answers matching questions.
type MatchingAnswer struct {
	Pairs []MatchPair `json:"pairs"`
}

// TextAnswer answers free-text questions that require manual grading.
type TextAnswer struct {
	Text string `json:"text"`
}

// InvalidAnswer carries a submitted payload that could not be decoded for its
// question type. It always evaluates as incorrect.
type InvalidAnswer struct {
	Reason string `json:"reason"`
}

func (ChoiceAnswer) answerKind() string    { return "choice" }
func (FillBlankAnswer) answerKind() string { return "fill_blank" }
func (MatchingAnswer) answerKind() string  { return "matching" }
func (TextAnswer) answerKind() string      { return "text" }
func (InvalidAnswer) answerKind() string   { return "invalid" }

// Answer is one submitted response. Value is nil when nothing was answered.
type Answer struct {
	QuestionIndex int
	Value         AnswerValue
	TimeSpent     time.Duration
}

// DecodeAnswer converts a raw JSON payload into the variant expected by the
// question type. Shape mismatches return an error wrapping ErrInvalidInput;
// an empty payload or JSON null decodes to a nil value.
func DecodeAnswer(questionType QuestionType, raw json.RawMessage) (AnswerValue, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch questionType {
	case QuestionMultipleChoice, QuestionTrueFalse:
		selected, err := decodeScalar(trimmed)
		if err != nil {
			return nil, err
		}
		return ChoiceAnswer{SelectedID: selected}, nil
	case QuestionFillBlank:
		text, err := decodeString(trimmed)
		if err != nil {
			return nil, err
		}
		return FillBlankAnswer{Text: text}, nil
	case QuestionMatching:
		var pairs []MatchPair
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			var wrapped MatchingAnswer
			if err := json.Unmarshal(trimmed, &wrapped); err != nil {
				return nil, fmt.Errorf("%w: matching answer must be a list of pairs", ErrInvalidInput)
			}
			pairs = wrapped.Pairs
		}
		return MatchingAnswer{Pairs: pairs}, nil
	case QuestionShortAnswer, QuestionLongAnswer, QuestionDefinition, QuestionParaphrase:
		text, err := decodeString(trimmed)
		if err != nil {
			return nil, err
		}
		return TextAnswer{Text: text}, nil
	default:
		return nil, configError("question", "unknown question type %q", questionType)
	}
}

// DecodeAnswerOrInvalid is DecodeAnswer with shape errors folded into an
// InvalidAnswer, so one malformed answer never aborts grading.
func DecodeAnswerOrInvalid(questionType QuestionType, raw json.RawMessage) (AnswerValue, error) {
	value, err := DecodeAnswer(questionType, raw)
	if err == nil {
		return value, nil
	}
	if isConfigError(err) {
		return nil, err
	}
	return InvalidAnswer{Reason: err.Error()}, nil
}

// AlignAnswers places answers at the position named by their QuestionIndex,
// producing the lockstep order Grade expects. Out-of-range indexes are
// dropped; on duplicates the last answer wins.
func AlignAnswers(answers []Answer, questionCount int) []Answer {
	aligned := make([]Answer, questionCount)
	for i := range aligned {
		aligned[i].QuestionIndex = i
	}
	for _, a := range answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= questionCount {
			continue
		}
		aligned[a.QuestionIndex] = a
	}
	return aligned
}

func decodeScalar(raw []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case map[string]interface{}:
		if selected, ok := v["selected_id"].(string); ok {
			return selected, nil
		}
	}
	return "", fmt.Errorf("%w: expected a selected option", ErrInvalidInput)
}

func decodeString(raw []byte) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("%w: expected text", ErrInvalidInput)
	}
	return text, nil
}

func isConfigError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
