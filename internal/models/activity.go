package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable grading actions taken by teachers and admins.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AllModels lists every persisted type for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&Student{},
		&Assignment{},
		&Submission{},
		&SubmissionGradeHistory{},
		&PeerReview{},
		&LearningModule{},
		&QuizAttempt{},
		&ModuleProgress{},
		&PlacementTest{},
		&PlacementResult{},
		&StreakRecord{},
		&StreakFreeze{},
		&AttendanceSession{},
		&UserBadge{},
		&Notification{},
		&ActivityLog{},
	}
}
