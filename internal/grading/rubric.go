package grading

import (
	"fmt"
	"math"
)

// Rubric describes manual grading criteria for an assignment.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
	Max      float64     `json:"max_points"`
}

// Criterion is a single rubric line.
type Criterion struct {
	Key       string  `json:"key"`
	Desc      string  `json:"desc"`
	MaxPoints float64 `json:"max_points"`
}

// ScoreRubric totals per-criterion awards, clamping each to its criterion
// max and the sum to the rubric max. Unknown keys are ignored.
func ScoreRubric(r Rubric, awarded map[string]float64) (float64, []string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := clamp(awarded[c.Key], 0, c.MaxPoints)
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f", c.Key, v))
	}
	if r.Max > 0 && total > r.Max {
		total = r.Max
	}
	return total, notes
}

// PeerReviewScore aggregates the totals of received peer reviews.
type PeerReviewScore struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// AggregatePeerReviews averages normalized 0..100 reviewer scores. Values
// outside the range are clamped.
func AggregatePeerReviews(scores []float64) PeerReviewScore {
	if len(scores) == 0 {
		return PeerReviewScore{}
	}
	var sum float64
	for _, s := range scores {
		sum += clamp(s, 0, 100)
	}
	return PeerReviewScore{
		Average: math.Round(sum/float64(len(scores))*100) / 100,
		Count:   len(scores),
	}
}
