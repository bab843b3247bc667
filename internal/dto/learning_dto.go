package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// ModuleCreateRequest creates a learning module with its quiz.
type ModuleCreateRequest struct {
	Title        string          `json:"title" validate:"required,min=3"`
	Level        string          `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	Questions    json.RawMessage `json:"questions" validate:"required"`
	PassingScore *float64        `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	MaxAttempts  int             `json:"max_attempts" validate:"gte=0,lte=100"`
}

// QuizAttemptRequest carries answers for a module quiz attempt.
type QuizAttemptRequest struct {
	Answers []AnswerPayload `json:"answers" validate:"dive"`
}

// ModuleResponse serializes a learning module for learners.
type ModuleResponse struct {
	ID           uint           `json:"id"`
	Title        string         `json:"title"`
	Level        string         `json:"level"`
	PassingScore float64        `json:"passing_score"`
	MaxAttempts  int            `json:"max_attempts"`
	Questions    []QuestionView `json:"questions"`
}

// ModuleProgressResponse summarizes progress within one module.
type ModuleProgressResponse struct {
	ModuleID      uint       `json:"module_id"`
	Attempts      int        `json:"attempts"`
	BestQuizScore int        `json:"best_quiz_score"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// QuizAttemptResponse is returned after grading a quiz attempt.
type QuizAttemptResponse struct {
	AttemptNumber int                        `json:"attempt_number"`
	EarnedPoints  float64                    `json:"earned_points"`
	TotalPoints   float64                    `json:"total_points"`
	Percentage    int                        `json:"percentage"`
	CorrectCount  int                        `json:"correct_count"`
	Passed        bool                       `json:"passed"`
	NeedsManual   bool                       `json:"needs_manual"`
	Results       []grading.EvaluationResult `json:"results"`
	Progress      ModuleProgressResponse     `json:"progress"`
}

// NewModuleResponse converts a module model.
func NewModuleResponse(model models.LearningModule) ModuleResponse {
	return ModuleResponse{
		ID:           model.ID,
		Title:        model.Title,
		Level:        model.Level,
		PassingScore: model.PassingScore,
		MaxAttempts:  model.MaxAttempts,
		Questions:    NewQuestionViews(model.QuizQuestions),
	}
}

// NewModuleProgressResponse converts a progress model.
func NewModuleProgressResponse(model models.ModuleProgress) ModuleProgressResponse {
	return ModuleProgressResponse{
		ModuleID:      model.ModuleID,
		Attempts:      model.Attempts,
		BestQuizScore: model.BestQuizScore,
		Completed:     model.Completed,
		CompletedAt:   model.CompletedAt,
	}
}

// NewQuizAttemptResponse combines the stored attempt and resulting progress.
func NewQuizAttemptResponse(attempt models.QuizAttempt, progress models.ModuleProgress) QuizAttemptResponse {
	return QuizAttemptResponse{
		AttemptNumber: attempt.AttemptNumber,
		EarnedPoints:  attempt.EarnedPoints,
		TotalPoints:   attempt.TotalPoints,
		Percentage:    attempt.Percentage,
		CorrectCount:  attempt.CorrectCount,
		Passed:        attempt.Passed,
		NeedsManual:   attempt.NeedsManual,
		Results:       append([]grading.EvaluationResult{}, attempt.Evaluations...),
		Progress:      NewModuleProgressResponse(progress),
	}
}
