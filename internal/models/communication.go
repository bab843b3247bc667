package models

import "time"

const (
	NotificationTypeSubmissionGraded = "submission_graded"
	NotificationTypePeerReview       = "peer_review_received"
	NotificationTypeStreakMilestone  = "streak_milestone"
	NotificationTypePlacement        = "placement_completed"
)

// Notification represents a push notification targeted to a specific student.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;index" json:"student_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
