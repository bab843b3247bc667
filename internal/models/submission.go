package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

const (
	// SubmissionStatusDraft indicates answers were saved but not submitted.
	SubmissionStatusDraft = "draft"
	// SubmissionStatusSubmitted indicates the submission was auto-graded and awaits review.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates manual grading has been completed.
	SubmissionStatusGraded = "graded"
)

// StoredAnswer is the persisted form of a submitted answer.
type StoredAnswer struct {
	QuestionIndex    int             `json:"question_index"`
	Value            json.RawMessage `json:"value"`
	TimeSpentSeconds int             `json:"time_spent_seconds,omitempty"`
}

// Submission holds a student's answers for an assignment and the composed score.
// A learner has at most one row per assignment; Version guards score writers.
type Submission struct {
	ID                 uint                                          `gorm:"primaryKey" json:"id"`
	AssignmentID       uint                                          `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID          uint                                          `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	Status             string                                        `gorm:"size:32;not null" json:"status"`
	Answers            datatypes.JSONSlice[StoredAnswer]             `json:"answers"`
	Evaluations        datatypes.JSONSlice[grading.EvaluationResult] `json:"evaluations"`
	ManualItemScores   datatypes.JSONType[map[int]float64]           `json:"manual_item_scores"`
	AutoScore          float64                                       `json:"auto_score"`
	ManualScore        *float64                                      `json:"manual_score"`
	RawScore           float64                                       `json:"raw_score"`
	DaysLate           int                                           `json:"days_late"`
	LatePenaltyPercent float64                                       `json:"late_penalty_percent"`
	FinalScore         float64                                       `json:"final_score"`
	Percentage         int                                           `json:"percentage"`
	Passed             bool                                          `json:"passed"`
	PeerReviewScore    *float64                                      `json:"peer_review_score"`
	PeerBlended        bool                                          `json:"peer_blended"`
	Feedback           string                                        `gorm:"type:text" json:"feedback"`
	GradedBy           *uint                                         `json:"graded_by"`
	GradedAt           *time.Time                                    `json:"graded_at"`
	StartedAt          time.Time                                     `json:"started_at"`
	SubmittedAt        *time.Time                                    `json:"submitted_at"`
	CreatedAt          time.Time                                     `json:"created_at"`
	UpdatedAt          time.Time                                     `json:"updated_at"`
	Version            int                                           `gorm:"not null;default:0" json:"-"`
	Assignment         Assignment                                    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student            Student                                       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	History            []SubmissionGradeHistory                      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"history"`
}

// SubmissionGradeHistory records each manual grading pass.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Score        float64   `json:"score"`
	Percentage   int       `json:"percentage"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     uint      `gorm:"not null" json:"graded_by"`
	GradedAt     time.Time `json:"graded_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// IsDraft reports whether the submission can still be edited.
func (s Submission) IsDraft() bool {
	return s.Status == SubmissionStatusDraft
}

// ApplyScore copies a composed score onto the submission.
func (s *Submission) ApplyScore(score grading.SubmissionScore) {
	s.RawScore = score.RawScore
	s.DaysLate = score.DaysLate
	s.LatePenaltyPercent = score.LatePenaltyPercent
	s.FinalScore = score.FinalScore
	s.Percentage = score.Percentage
	s.Passed = score.Passed
	s.PeerReviewScore = score.PeerReviewScore
	s.PeerBlended = score.PeerBlended
}

// PeerReview is one reviewer's normalized score for a submission.
type PeerReview struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_peer_review_reviewer" json:"submission_id"`
	ReviewerID   uint      `gorm:"not null;uniqueIndex:idx_peer_review_reviewer" json:"reviewer_id"`
	TotalScore   float64   `gorm:"not null" json:"total_score"`
	Comments     string    `gorm:"type:text" json:"comments"`
	CreatedAt    time.Time `json:"created_at"`
}
