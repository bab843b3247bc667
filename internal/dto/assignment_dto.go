package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

const isoLayout = time.RFC3339

// PeerReviewSettings configures peer review blending for an assignment.
type PeerReviewSettings struct {
	Enabled          bool    `json:"enabled"`
	ReviewsRequired  int     `json:"reviews_required" validate:"gte=0,lte=20"`
	InstructorWeight float64 `json:"instructor_weight" validate:"gte=0,lte=100"`
	PeerWeight       float64 `json:"peer_weight" validate:"gte=0,lte=100"`
}

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title               string              `json:"title" validate:"required,min=3"`
	Description         string              `json:"description" validate:"omitempty,max=5000"`
	DueDate             string              `json:"due_date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Questions           json.RawMessage     `json:"questions" validate:"required"`
	PassingScore        *float64            `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	AllowLateSubmission bool                `json:"allow_late_submission"`
	LatePenaltyPerDay   float64             `json:"late_penalty_per_day" validate:"gte=0,lte=100"`
	MaxLateDays         int                 `json:"max_late_days" validate:"gte=0,lte=365"`
	PeerReview          *PeerReviewSettings `json:"peer_review" validate:"omitempty"`
	Rubric              *grading.Rubric     `json:"rubric"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title               *string             `json:"title" validate:"omitempty,min=3"`
	Description         *string             `json:"description" validate:"omitempty,max=5000"`
	DueDate             *string             `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Questions           json.RawMessage     `json:"questions"`
	PassingScore        *float64            `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	AllowLateSubmission *bool               `json:"allow_late_submission"`
	LatePenaltyPerDay   *float64            `json:"late_penalty_per_day" validate:"omitempty,gte=0,lte=100"`
	MaxLateDays         *int                `json:"max_late_days" validate:"omitempty,gte=0,lte=365"`
	PeerReview          *PeerReviewSettings `json:"peer_review" validate:"omitempty"`
	Rubric              *grading.Rubric     `json:"rubric"`
}

// AssignmentListRequest defines filters for listing assignments.
type AssignmentListRequest struct {
	Page     int
	PageSize int
	Search   string
	Sort     string
}

// QuestionView is a question as shown to learners, without its answer key.
type QuestionView struct {
	Index      int                  `json:"index"`
	Type       grading.QuestionType `json:"type"`
	Prompt     string               `json:"prompt"`
	Points     float64              `json:"points"`
	Options    []string             `json:"options,omitempty"`
	LeftItems  []string             `json:"left_items,omitempty"`
	Category   string               `json:"category,omitempty"`
	Difficulty string               `json:"difficulty,omitempty"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                  uint               `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	DueDate             time.Time          `json:"due_date"`
	LateDeadline        *time.Time         `json:"late_deadline,omitempty"`
	TotalPoints         float64            `json:"total_points"`
	PassingScore        float64            `json:"passing_score"`
	AllowLateSubmission bool               `json:"allow_late_submission"`
	LatePenaltyPerDay   float64            `json:"late_penalty_per_day"`
	MaxLateDays         int                `json:"max_late_days"`
	PeerReview          PeerReviewSettings `json:"peer_review"`
	Rubric              grading.Rubric     `json:"rubric"`
	Questions           []QuestionView     `json:"questions"`
	AnswerKey           []grading.Question `json:"answer_key,omitempty"`
	TotalSubmissions    int                `json:"total_submissions"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// AssignmentListResponse wraps paginated assignments.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewQuestionViews strips answer keys from questions.
func NewQuestionViews(questions []grading.Question) []QuestionView {
	views := make([]QuestionView, 0, len(questions))
	for i, q := range questions {
		view := QuestionView{
			Index:      i,
			Type:       q.Type,
			Prompt:     q.Prompt,
			Points:     q.Points,
			Options:    q.Options,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		}
		for _, pair := range q.CorrectMatches {
			view.LeftItems = append(view.LeftItems, pair.Left)
		}
		views = append(views, view)
	}
	return views
}

// NewAssignmentResponse converts a model into a DTO. The answer key is only
// included for staff.
func NewAssignmentResponse(model models.Assignment, includeAnswerKey bool) AssignmentResponse {
	response := AssignmentResponse{
		ID:                  model.ID,
		Title:               model.Title,
		Description:         model.Description,
		DueDate:             model.DueDate,
		TotalPoints:         model.TotalPoints,
		PassingScore:        model.PassingScore,
		AllowLateSubmission: model.AllowLateSubmission,
		LatePenaltyPerDay:   model.LatePenaltyPerDay,
		MaxLateDays:         model.MaxLateDays,
		PeerReview: PeerReviewSettings{
			Enabled:          model.PeerReviewEnabled,
			ReviewsRequired:  model.PeerReviewsRequired,
			InstructorWeight: model.InstructorWeight,
			PeerWeight:       model.PeerWeight,
		},
		Rubric:           model.Rubric.Data(),
		Questions:        NewQuestionViews(model.Questions),
		TotalSubmissions: model.TotalSubmissions,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}

	if model.AllowLateSubmission {
		deadline := model.LateDeadline()
		response.LateDeadline = &deadline
	}
	if includeAnswerKey {
		response.AnswerKey = append([]grading.Question(nil), model.Questions...)
	}

	return response
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, includeAnswerKey bool) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, includeAnswerKey))
	}

	return responses
}
