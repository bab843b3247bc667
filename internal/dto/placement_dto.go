package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// PlacementTestCreateRequest creates a placement test.
type PlacementTestCreateRequest struct {
	Title     string          `json:"title" validate:"required,min=3"`
	Questions json.RawMessage `json:"questions" validate:"required"`
}

// PlacementSubmitRequest carries a learner's placement answers.
type PlacementSubmitRequest struct {
	Answers []AnswerPayload `json:"answers" validate:"dive"`
}

// PlacementTestResponse serializes a placement test without answers.
type PlacementTestResponse struct {
	ID        uint           `json:"id"`
	Title     string         `json:"title"`
	Questions []QuestionView `json:"questions"`
}

// PlacementResultResponse serializes a stored placement result.
type PlacementResultResponse struct {
	ID               uint                           `json:"id"`
	PlacementTestID  uint                           `json:"placement_test_id"`
	StudentID        uint                           `json:"student_id"`
	PercentageScore  float64                        `json:"percentage_score"`
	AssignedLevel    string                         `json:"assigned_level"`
	CategoryScores   map[string]grading.ScoreBucket `json:"category_scores"`
	SkillScores      map[string]grading.ScoreBucket `json:"skill_scores"`
	DifficultyScores map[string]grading.ScoreBucket `json:"difficulty_scores"`
	Strengths        []string                       `json:"strengths"`
	Weaknesses       []string                       `json:"weaknesses"`
	Feedback         string                         `json:"feedback"`
	CompletedAt      time.Time                      `json:"completed_at"`
}

// EnrollmentCheckResponse answers whether a learner may enroll in a course level.
type EnrollmentCheckResponse struct {
	StudentLevel string `json:"student_level"`
	CourseLevel  string `json:"course_level"`
	Allowed      bool   `json:"allowed"`
}

// NewPlacementTestResponse converts a test model.
func NewPlacementTestResponse(model models.PlacementTest) PlacementTestResponse {
	return PlacementTestResponse{
		ID:        model.ID,
		Title:     model.Title,
		Questions: NewQuestionViews(model.Questions),
	}
}

// NewPlacementResultResponse converts a result model.
func NewPlacementResultResponse(model models.PlacementResult) PlacementResultResponse {
	return PlacementResultResponse{
		ID:               model.ID,
		PlacementTestID:  model.PlacementTestID,
		StudentID:        model.StudentID,
		PercentageScore:  model.PercentageScore,
		AssignedLevel:    model.AssignedLevel,
		CategoryScores:   model.CategoryScores.Data(),
		SkillScores:      model.SkillScores.Data(),
		DifficultyScores: model.DifficultyScores.Data(),
		Strengths:        append([]string{}, model.Strengths...),
		Weaknesses:       append([]string{}, model.Weaknesses...),
		Feedback:         model.Feedback,
		CompletedAt:      model.CompletedAt,
	}
}
