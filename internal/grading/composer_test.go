package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestComposeLatePenalty(t *testing.T) {
	due := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

	score, err := Compose(ComposeInput{
		RawAutoScore:        80,
		SubmittedAt:         due.Add(20 * time.Hour),
		DueDate:             due,
		Late:                LatePolicy{PerDayPenaltyPercent: 10, MaxLateDays: 3},
		TotalPoints:         100,
		PassingScorePercent: 60,
	})
	require.NoError(t, err)
	require.Equal(t, 1, score.DaysLate)
	require.Equal(t, 10.0, score.LatePenaltyPercent)
	require.InDelta(t, 72.0, score.FinalScore, 1e-9)
	require.Equal(t, 72, score.Percentage)
	require.True(t, score.Passed)
	require.False(t, score.PeerBlended)
}

func TestComposeOnTimeHasNoPenalty(t *testing.T) {
	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	score, err := Compose(ComposeInput{
		RawAutoScore: 45,
		SubmittedAt:  due,
		DueDate:      due,
		Late:         LatePolicy{PerDayPenaltyPercent: 10, MaxLateDays: 3},
		TotalPoints:  50,
	})
	require.NoError(t, err)
	require.Equal(t, 0, score.DaysLate)
	require.Equal(t, 0.0, score.LatePenaltyPercent)
	require.Equal(t, 45.0, score.FinalScore)
	require.Equal(t, 90, score.Percentage)
}

func TestComposeManualOverrideReplacesItemizedScore(t *testing.T) {
	score, err := Compose(ComposeInput{
		RawAutoScore:        12,
		ManualScore:         floatPtr(30),
		TotalPoints:         40,
		PassingScorePercent: 70,
	})
	require.NoError(t, err)
	require.Equal(t, 30.0, score.RawScore)
	require.Equal(t, 75, score.Percentage)
	require.True(t, score.Passed)
}

func TestComposePenaltyIsMonotonic(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := LatePolicy{PerDayPenaltyPercent: 15, MaxLateDays: 4}

	previous := 1e9
	for day := 0; day <= 8; day++ {
		score, err := Compose(ComposeInput{
			RawAutoScore: 90,
			SubmittedAt:  due.Add(time.Duration(day) * 24 * time.Hour),
			DueDate:      due,
			Late:         policy,
			TotalPoints:  100,
		})
		require.NoError(t, err)
		require.LessOrEqual(t, score.FinalScore, previous)
		previous = score.FinalScore
	}
	require.InDelta(t, 36.0, previous, 1e-9)
}

func TestComposePenaltyFloorsAtZero(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	score, err := Compose(ComposeInput{
		RawAutoScore: 50,
		SubmittedAt:  due.Add(10 * 24 * time.Hour),
		DueDate:      due,
		Late:         LatePolicy{PerDayPenaltyPercent: 40, MaxLateDays: 5},
		TotalPoints:  100,
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, score.LatePenaltyPercent)
	require.Equal(t, 0.0, score.FinalScore)
	require.Equal(t, 0, score.Percentage)
}

func TestComposePeerReviewBlend(t *testing.T) {
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	score, err := Compose(ComposeInput{
		RawAutoScore:        70,
		SubmittedAt:         due.Add(30 * time.Hour),
		DueDate:             due,
		Late:                LatePolicy{PerDayPenaltyPercent: 10, MaxLateDays: 3},
		TotalPoints:         100,
		PassingScorePercent: 70,
		PeerReview: &PeerReviewInput{
			Enabled:          true,
			ReviewsRequired:  2,
			InstructorWeight: 80,
			PeerWeight:       20,
			Scores:           []float64{85, 95},
		},
	})
	require.NoError(t, err)
	require.True(t, score.PeerBlended)
	require.Equal(t, 74, score.Percentage)
	require.InDelta(t, 74.0, score.FinalScore, 1e-9)
	require.Equal(t, 20.0, score.LatePenaltyPercent)
	require.NotNil(t, score.PeerReviewScore)
	require.Equal(t, 90.0, *score.PeerReviewScore)
	require.True(t, score.Passed)
}

func TestComposePeerReviewWaitsForRequiredCount(t *testing.T) {
	score, err := Compose(ComposeInput{
		RawAutoScore: 70,
		TotalPoints:  100,
		PeerReview: &PeerReviewInput{
			Enabled:          true,
			ReviewsRequired:  3,
			InstructorWeight: 60,
			PeerWeight:       40,
			Scores:           []float64{100, 100},
		},
	})
	require.NoError(t, err)
	require.False(t, score.PeerBlended)
	require.Equal(t, 70, score.Percentage)
	require.Equal(t, 100.0, *score.PeerReviewScore)
}

func TestComposeConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input ComposeInput
	}{
		{name: "zero total points", input: ComposeInput{RawAutoScore: 1}},
		{name: "negative late days", input: ComposeInput{TotalPoints: 10, Late: LatePolicy{MaxLateDays: -1}}},
		{name: "weights do not sum to 100", input: ComposeInput{TotalPoints: 10, PeerReview: &PeerReviewInput{Enabled: true, InstructorWeight: 70, PeerWeight: 20}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compose(tc.input)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestComposeIsIdempotent(t *testing.T) {
	due := time.Date(2025, 2, 2, 8, 0, 0, 0, time.UTC)
	input := ComposeInput{
		RawAutoScore:        63,
		ManualScore:         floatPtr(66),
		SubmittedAt:         due.Add(49 * time.Hour),
		DueDate:             due,
		Late:                LatePolicy{PerDayPenaltyPercent: 5, MaxLateDays: 2},
		TotalPoints:         80,
		PassingScorePercent: 65,
	}

	first, err := Compose(input)
	require.NoError(t, err)
	second, err := Compose(input)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 3, first.DaysLate)
	require.Equal(t, 10.0, first.LatePenaltyPercent)
}

func TestSumItemizedAppliesManualScoresToManualQuestionsOnly(t *testing.T) {
	results := []EvaluationResult{
		{IsCorrect: boolPtr(true), PointsEarned: 5, MaxPoints: 5},
		{NeedsManual: true, MaxPoints: 10},
		{NeedsManual: true, MaxPoints: 4},
		{IsCorrect: boolPtr(false), MaxPoints: 5},
	}

	total := SumItemized(results, map[int]float64{1: 8, 2: 9, 3: 5})
	require.Equal(t, 17.0, total)
}

func TestScoreRubric(t *testing.T) {
	rubric := Rubric{
		Criteria: []Criterion{
			{Key: "structure", MaxPoints: 10},
			{Key: "content", MaxPoints: 20},
			{Key: "style", MaxPoints: 10},
		},
		Max: 35,
	}

	total, notes := ScoreRubric(rubric, map[string]float64{"structure": 12, "content": 18, "style": 8, "bonus": 5})
	require.Equal(t, 35.0, total)
	require.Equal(t, []string{"structure:10.00", "content:18.00", "style:8.00"}, notes)
}

func TestAggregatePeerReviews(t *testing.T) {
	require.Equal(t, PeerReviewScore{}, AggregatePeerReviews(nil))
	require.Equal(t, PeerReviewScore{Average: 80, Count: 3}, AggregatePeerReviews([]float64{70, 120, 70}))
}
