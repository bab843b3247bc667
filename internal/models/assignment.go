package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// Assignment is a graded piece of coursework made of structured questions.
type Assignment struct {
	ID                  uint                                  `gorm:"primaryKey" json:"id"`
	Title               string                                `gorm:"size:255;not null" json:"title"`
	Description         string                                `gorm:"type:text" json:"description"`
	DueDate             time.Time                             `gorm:"not null" json:"due_date"`
	Questions           datatypes.JSONSlice[grading.Question] `json:"questions"`
	TotalPoints         float64                               `gorm:"not null" json:"total_points"`
	PassingScore        float64                               `gorm:"not null;default:60" json:"passing_score"`
	AllowLateSubmission bool                                  `gorm:"not null;default:false" json:"allow_late_submission"`
	LatePenaltyPerDay   float64                               `gorm:"not null;default:0" json:"late_penalty_per_day"`
	MaxLateDays         int                                   `gorm:"not null;default:0" json:"max_late_days"`
	PeerReviewEnabled   bool                                  `gorm:"not null;default:false" json:"peer_review_enabled"`
	PeerReviewsRequired int                                   `gorm:"not null;default:0" json:"peer_reviews_required"`
	InstructorWeight    float64                               `gorm:"not null;default:100" json:"instructor_weight"`
	PeerWeight          float64                               `gorm:"not null;default:0" json:"peer_weight"`
	Rubric              datatypes.JSONType[grading.Rubric]    `json:"rubric"`
	TotalSubmissions    int                                   `gorm:"not null;default:0" json:"total_submissions"`
	CreatedAt           time.Time                             `json:"created_at"`
	UpdatedAt           time.Time                             `json:"updated_at"`
	Submissions         []Submission                          `json:"-"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// LateDeadline is the last moment a late submission is still accepted.
func (a Assignment) LateDeadline() time.Time {
	return a.DueDate.AddDate(0, 0, a.MaxLateDays)
}

// IsOpen reports whether a submission made at reference would be accepted.
func (a Assignment) IsOpen(reference time.Time) bool {
	if !a.IsPastDue(reference) {
		return true
	}
	return a.AllowLateSubmission && !reference.After(a.LateDeadline())
}

// LatePolicy returns the late penalty configuration used by the composer.
func (a Assignment) LatePolicy() grading.LatePolicy {
	if !a.AllowLateSubmission {
		return grading.LatePolicy{}
	}
	return grading.LatePolicy{
		PerDayPenaltyPercent: a.LatePenaltyPerDay,
		MaxLateDays:          a.MaxLateDays,
	}
}

// PeerReviewInput builds composer input from the received peer scores.
func (a Assignment) PeerReviewInput(scores []float64) *grading.PeerReviewInput {
	if !a.PeerReviewEnabled {
		return nil
	}
	return &grading.PeerReviewInput{
		Enabled:          true,
		ReviewsRequired:  a.PeerReviewsRequired,
		InstructorWeight: a.InstructorWeight,
		PeerWeight:       a.PeerWeight,
		Scores:           scores,
	}
}
