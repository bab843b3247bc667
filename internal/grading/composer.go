package grading

import (
	"math"
	"time"
)

// LatePolicy configures the per-day late deduction.
type LatePolicy struct {
	PerDayPenaltyPercent float64 `json:"per_day_penalty_percent"`
	MaxLateDays          int     `json:"max_late_days"`
}

// PeerReviewInput feeds peer scores into composition.
type PeerReviewInput struct {
	Enabled          bool      `json:"enabled"`
	ReviewsRequired  int       `json:"reviews_required"`
	InstructorWeight float64   `json:"instructor_weight"`
	PeerWeight       float64   `json:"peer_weight"`
	Scores           []float64 `json:"scores"`
}

// Validate rejects negative penalties or late windows.
func (p LatePolicy) Validate() error {
	if p.PerDayPenaltyPercent < 0 || p.MaxLateDays < 0 {
		return configError("late_policy", "penalty and max late days must not be negative")
	}
	return nil
}

// Validate checks the blend weights. Disabled peer review is always valid.
func (p PeerReviewInput) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.InstructorWeight < 0 || p.PeerWeight < 0 {
		return configError("peer_review", "weights must not be negative")
	}
	if math.Abs(p.InstructorWeight+p.PeerWeight-100) > 1e-9 {
		return configError("peer_review", "instructor and peer weights must sum to 100, got %v + %v", p.InstructorWeight, p.PeerWeight)
	}
	if p.ReviewsRequired < 0 {
		return configError("peer_review", "reviews required must not be negative")
	}
	return nil
}

// ComposeInput holds everything Compose needs. It is a plain value so the
// composer stays free of persistence concerns.
type ComposeInput struct {
	RawAutoScore        float64
	ManualScore         *float64
	SubmittedAt         time.Time
	DueDate             time.Time
	Late                LatePolicy
	TotalPoints         float64
	PassingScorePercent float64
	PeerReview          *PeerReviewInput
}

// SubmissionScore is the assignment-level result of composition.
type SubmissionScore struct {
	RawScore           float64  `json:"raw_score"`
	DaysLate           int      `json:"days_late"`
	LatePenaltyPercent float64  `json:"late_penalty_percent"`
	FinalScore         float64  `json:"final_score"`
	Percentage         int      `json:"percentage"`
	Passed             bool     `json:"passed"`
	PeerReviewScore    *float64 `json:"peer_review_score,omitempty"`
	PeerBlended        bool     `json:"peer_blended"`
}

// Compose combines the raw score, manual override, late penalty and peer
// review blend into a final score. Identical inputs give identical output.
//
// When peer blending applies it replaces the penalty-adjusted percentage
// rather than compounding with it; LatePenaltyPercent is still reported.
func Compose(in ComposeInput) (SubmissionScore, error) {
	if in.TotalPoints <= 0 {
		return SubmissionScore{}, configError("total_points", "must be positive, got %v", in.TotalPoints)
	}
	if err := in.Late.Validate(); err != nil {
		return SubmissionScore{}, err
	}

	raw := in.RawAutoScore
	if in.ManualScore != nil {
		raw = *in.ManualScore
	}
	raw = math.Max(raw, 0)

	daysLate, penalty := LatePenalty(in.SubmittedAt, in.DueDate, in.Late)
	final := math.Max(0, raw-raw*penalty/100)

	score := SubmissionScore{
		RawScore:           raw,
		DaysLate:           daysLate,
		LatePenaltyPercent: penalty,
		FinalScore:         final,
		Percentage:         Percentage(final, in.TotalPoints),
	}

	if in.PeerReview != nil && in.PeerReview.Enabled {
		peer := in.PeerReview
		if err := peer.Validate(); err != nil {
			return SubmissionScore{}, err
		}

		if len(peer.Scores) > 0 {
			aggregate := AggregatePeerReviews(peer.Scores)
			average := aggregate.Average
			score.PeerReviewScore = &average

			if len(peer.Scores) >= peer.ReviewsRequired {
				rawPercent := raw / in.TotalPoints * 100
				blended := rawPercent*peer.InstructorWeight/100 + average*peer.PeerWeight/100
				score.FinalScore = blended / 100 * in.TotalPoints
				score.Percentage = int(clamp(math.Round(blended), 0, 100))
				score.PeerBlended = true
			}
		}
	}

	score.Passed = float64(score.Percentage) >= in.PassingScorePercent
	return score, nil
}

// LatePenalty returns the whole days late (rounded up) and the percentage
// deduction, capped at MaxLateDays. On-time submissions return zeros.
func LatePenalty(submittedAt, dueDate time.Time, policy LatePolicy) (int, float64) {
	if dueDate.IsZero() || !submittedAt.After(dueDate) {
		return 0, 0
	}

	daysLate := int(math.Ceil(submittedAt.Sub(dueDate).Hours() / 24))
	effective := daysLate
	if effective > policy.MaxLateDays {
		effective = policy.MaxLateDays
	}

	penalty := clamp(float64(effective)*policy.PerDayPenaltyPercent, 0, 100)
	return daysLate, penalty
}

// SumItemized adds auto-graded points to per-question manual scores. Manual
// scores are keyed by question index, only apply to questions needing manual
// grading, and are clamped to each question's max points.
func SumItemized(results []EvaluationResult, manual map[int]float64) float64 {
	var total float64
	for i, result := range results {
		total += result.PointsEarned
		if !result.NeedsManual {
			continue
		}
		if awarded, ok := manual[i]; ok {
			total += clamp(awarded, 0, result.MaxPoints)
		}
	}
	return total
}
