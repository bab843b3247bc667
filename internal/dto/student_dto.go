package dto

import "time"

// StudentDashboardResponse aggregates a learner's grading progress.
type StudentDashboardResponse struct {
	StudentID         uint                     `json:"student_id"`
	Level             string                   `json:"level"`
	Summary           ProgressSummary          `json:"summary"`
	Streak            StreakResponse           `json:"streak"`
	Badges            []BadgeResponse          `json:"badges"`
	Modules           []ModuleProgressResponse `json:"modules"`
	RecentSubmissions []SubmissionActivity     `json:"recent_submissions"`
	GeneratedAt       time.Time                `json:"generated_at"`
	CacheHit          bool                     `json:"cache_hit"`
}

// ProgressSummary captures aggregated statistics for the dashboard.
type ProgressSummary struct {
	Submitted         int     `json:"submitted"`
	Graded            int     `json:"graded"`
	Passed            int     `json:"passed"`
	AveragePercentage float64 `json:"average_percentage"`
	ModulesCompleted  int     `json:"modules_completed"`
}

// SubmissionActivity details a recent scored submission.
type SubmissionActivity struct {
	SubmissionID       uint       `json:"submission_id"`
	AssignmentID       uint       `json:"assignment_id"`
	AssignmentName     string     `json:"assignment_name"`
	Status             string     `json:"status"`
	FinalScore         float64    `json:"final_score"`
	Percentage         int        `json:"percentage"`
	Passed             bool       `json:"passed"`
	LatePenaltyPercent float64    `json:"late_penalty_percent"`
	SubmittedAt        *time.Time `json:"submitted_at"`
}
