package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AnswerPayload is a single answer keyed by question position.
type AnswerPayload struct {
	QuestionIndex    int             `json:"question_index" validate:"gte=0"`
	Value            json.RawMessage `json:"value"`
	TimeSpentSeconds int             `json:"time_spent_seconds" validate:"gte=0"`
}

// SubmissionAnswersRequest carries answers for a draft save or a final submit.
type SubmissionAnswersRequest struct {
	AssignmentID uint            `json:"assignment_id" validate:"required,gt=0"`
	StudentID    uint            `json:"student_id" validate:"omitempty,gt=0"`
	Answers      []AnswerPayload `json:"answers" validate:"dive"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint   `query:"assignment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=draft submitted graded"`
	Page         int     `query:"page" validate:"gte=0"`
	PageSize     int     `query:"page_size" validate:"gte=0,lte=100"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                 uint                             `json:"id"`
	AssignmentID       uint                             `json:"assignment_id"`
	StudentID          uint                             `json:"student_id"`
	Status             string                           `json:"status"`
	Answers            []models.StoredAnswer            `json:"answers"`
	Evaluations        []grading.EvaluationResult       `json:"evaluations"`
	AutoScore          float64                          `json:"auto_score"`
	ManualScore        *float64                         `json:"manual_score"`
	RawScore           float64                          `json:"raw_score"`
	DaysLate           int                              `json:"days_late"`
	LatePenaltyPercent float64                          `json:"late_penalty_percent"`
	FinalScore         float64                          `json:"final_score"`
	Percentage         int                              `json:"percentage"`
	Passed             bool                             `json:"passed"`
	PeerReviewScore    *float64                         `json:"peer_review_score"`
	PeerBlended        bool                             `json:"peer_blended"`
	NeedsManualGrading bool                             `json:"needs_manual_grading"`
	Feedback           string                           `json:"feedback"`
	GradedBy           *uint                            `json:"graded_by"`
	GradedAt           *time.Time                       `json:"graded_at"`
	SubmittedAt        *time.Time                       `json:"submitted_at"`
	History            []SubmissionGradeHistoryResponse `json:"history"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
	Assignment         AssignmentLite                   `json:"assignment"`
	Student            StudentLite                      `json:"student"`
}

// SubmissionListResponse wraps paginated submissions.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID      uint      `json:"id"`
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Score      float64   `json:"score"`
	Percentage int       `json:"percentage"`
	Feedback   string    `json:"feedback"`
	GradedBy   uint      `json:"graded_by"`
	GradedAt   time.Time `json:"graded_at"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:                 model.ID,
		AssignmentID:       model.AssignmentID,
		StudentID:          model.StudentID,
		Status:             model.Status,
		Answers:            append([]models.StoredAnswer{}, model.Answers...),
		Evaluations:        append([]grading.EvaluationResult{}, model.Evaluations...),
		AutoScore:          model.AutoScore,
		ManualScore:        model.ManualScore,
		RawScore:           model.RawScore,
		DaysLate:           model.DaysLate,
		LatePenaltyPercent: model.LatePenaltyPercent,
		FinalScore:         model.FinalScore,
		Percentage:         model.Percentage,
		Passed:             model.Passed,
		PeerReviewScore:    model.PeerReviewScore,
		PeerBlended:        model.PeerBlended,
		Feedback:           model.Feedback,
		GradedBy:           model.GradedBy,
		GradedAt:           model.GradedAt,
		SubmittedAt:        model.SubmittedAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}

	if !model.IsGraded() {
		for _, result := range model.Evaluations {
			if result.NeedsManual {
				response.NeedsManualGrading = true
				break
			}
		}
	}

	if model.Assignment.ID != 0 {
		response.Assignment = AssignmentLite{
			ID:      model.Assignment.ID,
			Title:   model.Assignment.Title,
			DueDate: model.Assignment.DueDate,
		}
	}

	if model.Student.ID != 0 {
		response.Student = StudentLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Level: model.Student.Level,
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Score:      entry.Score,
				Percentage: entry.Percentage,
				Feedback:   entry.Feedback,
				GradedBy:   entry.GradedBy,
				GradedAt:   entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
