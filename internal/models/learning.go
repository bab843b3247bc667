package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// LearningModule is a unit of course content closed by a quiz.
type LearningModule struct {
	ID            uint                                  `gorm:"primaryKey" json:"id"`
	Title         string                                `gorm:"size:255;not null" json:"title"`
	Level         string                                `gorm:"size:32;index" json:"level"`
	QuizQuestions datatypes.JSONSlice[grading.Question] `json:"quiz_questions"`
	PassingScore  float64                               `gorm:"not null;default:70" json:"passing_score"`
	MaxAttempts   int                                   `gorm:"not null;default:0" json:"max_attempts"`
	CreatedAt     time.Time                             `json:"created_at"`
	UpdatedAt     time.Time                             `json:"updated_at"`
}

// QuizAttempt is one graded attempt at a module quiz.
type QuizAttempt struct {
	ID            uint                                          `gorm:"primaryKey" json:"id"`
	ModuleID      uint                                          `gorm:"not null;uniqueIndex:idx_quiz_attempt_number" json:"module_id"`
	StudentID     uint                                          `gorm:"not null;uniqueIndex:idx_quiz_attempt_number" json:"student_id"`
	AttemptNumber int                                           `gorm:"not null;uniqueIndex:idx_quiz_attempt_number" json:"attempt_number"`
	Answers       datatypes.JSONSlice[StoredAnswer]             `json:"answers"`
	Evaluations   datatypes.JSONSlice[grading.EvaluationResult] `json:"evaluations"`
	EarnedPoints  float64                                       `json:"earned_points"`
	TotalPoints   float64                                       `json:"total_points"`
	Percentage    int                                           `json:"percentage"`
	CorrectCount  int                                           `json:"correct_count"`
	Passed        bool                                          `json:"passed"`
	NeedsManual   bool                                          `json:"needs_manual"`
	TimeSpent     int                                           `json:"time_spent_seconds"`
	CreatedAt     time.Time                                     `json:"created_at"`
}

// ModuleProgress tracks a student's standing in one module.
type ModuleProgress struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ModuleID      uint       `gorm:"not null;uniqueIndex:idx_module_progress_student" json:"module_id"`
	StudentID     uint       `gorm:"not null;uniqueIndex:idx_module_progress_student" json:"student_id"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	BestQuizScore int        `gorm:"not null;default:0" json:"best_quiz_score"`
	Completed     bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt   *time.Time `json:"completed_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PlacementTest is a fixed question set used to assign a starting level.
type PlacementTest struct {
	ID        uint                                  `gorm:"primaryKey" json:"id"`
	Title     string                                `gorm:"size:255;not null" json:"title"`
	Questions datatypes.JSONSlice[grading.Question] `json:"questions"`
	Active    bool                                  `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time                             `json:"created_at"`
	UpdatedAt time.Time                             `json:"updated_at"`
}

// PlacementResult stores the outcome of a completed placement test.
type PlacementResult struct {
	ID               uint                                               `gorm:"primaryKey" json:"id"`
	PlacementTestID  uint                                               `gorm:"not null;index" json:"placement_test_id"`
	StudentID        uint                                               `gorm:"not null;index" json:"student_id"`
	PercentageScore  float64                                            `json:"percentage_score"`
	AssignedLevel    string                                             `gorm:"size:32;not null" json:"assigned_level"`
	CategoryScores   datatypes.JSONType[map[string]grading.ScoreBucket] `json:"category_scores"`
	SkillScores      datatypes.JSONType[map[string]grading.ScoreBucket] `json:"skill_scores"`
	DifficultyScores datatypes.JSONType[map[string]grading.ScoreBucket] `json:"difficulty_scores"`
	Strengths        datatypes.JSONSlice[string]                        `json:"strengths"`
	Weaknesses       datatypes.JSONSlice[string]                        `json:"weaknesses"`
	Feedback         string                                             `gorm:"type:text" json:"feedback"`
	CompletedAt      time.Time                                          `json:"completed_at"`
}
