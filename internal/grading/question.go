package grading

import (
	"fmt"
	"strings"
)

// QuestionType identifies how a question is answered and graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionFillBlank      QuestionType = "fill-blank"
	QuestionMatching       QuestionType = "matching"
	QuestionShortAnswer    QuestionType = "short-answer"
	QuestionLongAnswer     QuestionType = "long-answer"
	QuestionDefinition     QuestionType = "definition"
	QuestionParaphrase     QuestionType = "paraphrase"
)

var knownTypes = map[QuestionType]struct{}{
	QuestionMultipleChoice: {},
	QuestionTrueFalse:      {},
	QuestionFillBlank:      {},
	QuestionMatching:       {},
	QuestionShortAnswer:    {},
	QuestionLongAnswer:     {},
	QuestionDefinition:     {},
	QuestionParaphrase:     {},
}

// Known reports whether the type is one the evaluator understands.
func (t QuestionType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// MatchPair links a left-hand prompt to its right-hand match.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question is a single gradable item inside an assignment, quiz or placement test.
type Question struct {
	ID                string       `json:"id"`
	Type              QuestionType `json:"type"`
	Prompt            string       `json:"prompt,omitempty"`
	Points            float64      `json:"points"`
	Options           []string     `json:"options,omitempty"`
	CorrectAnswer     string       `json:"correct_answer,omitempty"`
	AcceptableAnswers []string     `json:"acceptable_answers,omitempty"`
	CorrectMatches    []MatchPair  `json:"correct_matches,omitempty"`
	Category          string       `json:"category,omitempty"`
	Skill             string       `json:"skill,omitempty"`
	Difficulty        string       `json:"difficulty,omitempty"`
}

// Validate checks the definition invariants. It never inspects answers.
func (q Question) Validate() error {
	field := "question"
	if q.ID != "" {
		field = fmt.Sprintf("question %s", q.ID)
	}

	if !q.Type.Known() {
		return configError(field, "unknown question type %q", q.Type)
	}
	if q.Points <= 0 {
		return configError(field, "points must be positive, got %v", q.Points)
	}

	switch q.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return configError(field, "correct answer is required for %s", q.Type)
		}
	case QuestionFillBlank:
		if len(nonEmpty(q.AcceptableAnswers)) == 0 {
			return configError(field, "acceptable answers are required for fill-blank")
		}
	case QuestionMatching:
		if len(q.CorrectMatches) == 0 {
			return configError(field, "correct matches are required for matching")
		}
		seen := make(map[string]struct{}, len(q.CorrectMatches))
		for _, pair := range q.CorrectMatches {
			key := normalizeText(pair.Left)
			if key == "" {
				return configError(field, "matching pair has an empty left side")
			}
			if _, dup := seen[key]; dup {
				return configError(field, "duplicate matching prompt %q", pair.Left)
			}
			seen[key] = struct{}{}
		}
	}

	return nil
}

// ValidateQuestions validates every question and the aggregate point total.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return configError("questions", "at least one question is required")
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TotalPoints sums the points of every question.
func TotalPoints(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	return total
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
