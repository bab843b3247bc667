package grading

import (
	"fmt"
	"math"
	"sort"
)

// GradingOutcome summarises one quiz or test attempt. A new attempt always
// produces a new outcome.
type GradingOutcome struct {
	EarnedPoints float64            `json:"earned_points"`
	TotalPoints  float64            `json:"total_points"`
	Percentage   int                `json:"percentage"`
	CorrectCount int                `json:"correct_count"`
	Passed       bool               `json:"passed"`
	NeedsManual  bool               `json:"needs_manual"`
	Results      []EvaluationResult `json:"results"`
}

// Grade evaluates answers against questions in lockstep. The answers slice
// may be shorter than questions; missing entries grade as unanswered. A
// malformed question aborts the whole grade so nothing is half-graded.
func Grade(questions []Question, answers []Answer, passingScorePercent float64) (GradingOutcome, error) {
	outcome := GradingOutcome{Results: make([]EvaluationResult, 0, len(questions))}

	for i, q := range questions {
		var answer *Answer
		if i < len(answers) {
			answer = &answers[i]
		}

		result, err := Evaluate(q, answer)
		if err != nil {
			return GradingOutcome{}, fmt.Errorf("question %d: %w", i, err)
		}

		outcome.TotalPoints += q.Points
		outcome.EarnedPoints += result.PointsEarned
		if result.IsCorrect != nil && *result.IsCorrect {
			outcome.CorrectCount++
		}
		if result.NeedsManual {
			outcome.NeedsManual = true
		}
		outcome.Results = append(outcome.Results, result)
	}

	outcome.Percentage = Percentage(outcome.EarnedPoints, outcome.TotalPoints)
	outcome.Passed = float64(outcome.Percentage) >= passingScorePercent

	return outcome, nil
}

// Percentage returns round(earned/total*100) clamped to [0,100], or 0 when
// total is not positive.
func Percentage(earned, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(clamp(math.Round(earned/total*100), 0, 100))
}

// ScoreBucket aggregates points for one category, skill or difficulty.
type ScoreBucket struct {
	Earned     float64 `json:"earned"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
	Questions  int     `json:"questions"`
	Correct    int     `json:"correct"`
}

// Breakdown groups an outcome by question category, skill and difficulty.
type Breakdown struct {
	Categories   map[string]ScoreBucket `json:"categories"`
	Skills       map[string]ScoreBucket `json:"skills"`
	Difficulties map[string]ScoreBucket `json:"difficulties"`
}

// BuildBreakdown aggregates results per category, skill and difficulty.
// Questions without a label are grouped under "general".
func BuildBreakdown(questions []Question, outcome GradingOutcome) Breakdown {
	breakdown := Breakdown{
		Categories:   map[string]ScoreBucket{},
		Skills:       map[string]ScoreBucket{},
		Difficulties: map[string]ScoreBucket{},
	}

	for i, q := range questions {
		if i >= len(outcome.Results) {
			break
		}
		result := outcome.Results[i]
		addToBucket(breakdown.Categories, labelOr(q.Category), q.Points, result)
		addToBucket(breakdown.Skills, labelOr(q.Skill), q.Points, result)
		addToBucket(breakdown.Difficulties, labelOr(q.Difficulty), q.Points, result)
	}

	for _, buckets := range []map[string]ScoreBucket{breakdown.Categories, breakdown.Skills, breakdown.Difficulties} {
		for key, bucket := range buckets {
			if bucket.Total > 0 {
				bucket.Percentage = round2(bucket.Earned / bucket.Total * 100)
			}
			buckets[key] = bucket
		}
	}

	return breakdown
}

// SortedKeys returns bucket names in lexical order.
func SortedKeys(buckets map[string]ScoreBucket) []string {
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func addToBucket(buckets map[string]ScoreBucket, key string, points float64, result EvaluationResult) {
	bucket := buckets[key]
	bucket.Total += points
	bucket.Earned += result.PointsEarned
	bucket.Questions++
	if result.IsCorrect != nil && *result.IsCorrect {
		bucket.Correct++
	}
	buckets[key] = bucket
}

func labelOr(label string) string {
	if normalized := normalizeText(label); normalized != "" {
		return normalized
	}
	return "general"
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
