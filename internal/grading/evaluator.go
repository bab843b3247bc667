package grading

import (
	"math"
	"strings"
)

// EvaluationResult is the immutable outcome of grading one answer.
// IsCorrect is nil when the question is not auto-gradable.
type EvaluationResult struct {
	IsCorrect    *bool   `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	MaxPoints    float64 `json:"max_points"`
	NeedsManual  bool    `json:"needs_manual"`
	Feedback     string  `json:"feedback,omitempty"`
}

type strategy func(q Question, value AnswerValue) EvaluationResult

var strategies = map[QuestionType]strategy{
	QuestionMultipleChoice: gradeChoice,
	QuestionTrueFalse:      gradeChoice,
	QuestionFillBlank:      gradeFillBlank,
	QuestionMatching:       gradeMatching,
	QuestionShortAnswer:    gradeManual,
	QuestionLongAnswer:     gradeManual,
	QuestionDefinition:     gradeManual,
	QuestionParaphrase:     gradeManual,
}

// Evaluate grades a single answer against its question definition.
// Student input never causes an error; only a malformed question does.
func Evaluate(q Question, answer *Answer) (EvaluationResult, error) {
	if err := q.Validate(); err != nil {
		return EvaluationResult{}, err
	}

	if answer == nil || answer.Value == nil {
		return incorrect(q, "no answer submitted"), nil
	}

	if invalid, ok := answer.Value.(InvalidAnswer); ok {
		return incorrect(q, invalidFeedback(invalid.Reason)), nil
	}

	return strategies[q.Type](q, answer.Value), nil
}

func gradeChoice(q Question, value AnswerValue) EvaluationResult {
	choice, ok := value.(ChoiceAnswer)
	if !ok {
		return incorrect(q, invalidFeedback("expected a selected option"))
	}
	if choice.SelectedID == q.CorrectAnswer {
		return correct(q, q.Points)
	}
	return incorrect(q, "")
}

func gradeFillBlank(q Question, value AnswerValue) EvaluationResult {
	fill, ok := value.(FillBlankAnswer)
	if !ok {
		return incorrect(q, invalidFeedback("expected text"))
	}
	submitted := normalizeText(fill.Text)
	if submitted == "" {
		return incorrect(q, "no answer submitted")
	}
	for _, acceptable := range q.AcceptableAnswers {
		if normalizeText(acceptable) == submitted {
			return correct(q, q.Points)
		}
	}
	return incorrect(q, "")
}

func gradeMatching(q Question, value AnswerValue) EvaluationResult {
	matching, ok := value.(MatchingAnswer)
	if !ok || len(matching.Pairs) == 0 {
		return incorrect(q, invalidFeedback("matching answer has no pairs"))
	}

	submitted := make(map[string]string, len(matching.Pairs))
	for _, pair := range matching.Pairs {
		left := normalizeText(pair.Left)
		if left == "" {
			continue
		}
		if _, exists := submitted[left]; !exists {
			submitted[left] = normalizeText(pair.Right)
		}
	}

	matched := 0
	for _, expected := range q.CorrectMatches {
		if right, ok := submitted[normalizeText(expected.Left)]; ok && right == normalizeText(expected.Right) {
			matched++
		}
	}

	total := len(q.CorrectMatches)
	isCorrect := matched == total
	earned := math.Min(math.Round(float64(matched)/float64(total)*q.Points), q.Points)
	if isCorrect {
		earned = q.Points
	}
	result := EvaluationResult{
		IsCorrect:    &isCorrect,
		PointsEarned: earned,
		MaxPoints:    q.Points,
	}
	if !isCorrect && matched > 0 {
		result.Feedback = "partially correct"
	}
	return result
}

func gradeManual(q Question, value AnswerValue) EvaluationResult {
	if _, ok := value.(TextAnswer); !ok {
		return incorrect(q, invalidFeedback("expected text"))
	}
	return EvaluationResult{
		MaxPoints:   q.Points,
		NeedsManual: true,
		Feedback:    "manual grading required",
	}
}

func correct(q Question, points float64) EvaluationResult {
	yes := true
	return EvaluationResult{IsCorrect: &yes, PointsEarned: points, MaxPoints: q.Points}
}

func incorrect(q Question, feedback string) EvaluationResult {
	no := false
	return EvaluationResult{IsCorrect: &no, MaxPoints: q.Points, Feedback: feedback}
}

func invalidFeedback(reason string) string {
	reason = strings.TrimPrefix(reason, ErrInvalidInput.Error()+": ")
	return "answer format does not match question type: " + reason
}
