package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// GradeSubmissionRequest captures a manual grading pass. OverrideScore wins
// over rubric awards, which win over per-question item scores.
type GradeSubmissionRequest struct {
	ItemScores    map[int]float64    `json:"item_scores" validate:"omitempty,dive,gte=0"`
	RubricScores  map[string]float64 `json:"rubric_scores" validate:"omitempty,dive,gte=0"`
	OverrideScore *float64           `json:"override_score" validate:"omitempty,gte=0"`
	Feedback      string             `json:"feedback" validate:"omitempty,max=5000"`
}

// PeerReviewRequest is a classmate's normalized score for a submission.
type PeerReviewRequest struct {
	TotalScore float64 `json:"total_score" validate:"gte=0,lte=100"`
	Comments   string  `json:"comments" validate:"omitempty,max=2000"`
}

// PeerReviewResponse serializes a stored peer review.
type PeerReviewResponse struct {
	ID           uint      `json:"id"`
	SubmissionID uint      `json:"submission_id"`
	ReviewerID   uint      `json:"reviewer_id"`
	TotalScore   float64   `json:"total_score"`
	Comments     string    `json:"comments"`
	CreatedAt    time.Time `json:"created_at"`
}

// PeerReviewResultResponse returns the review together with the recomposed submission.
type PeerReviewResultResponse struct {
	Review     PeerReviewResponse `json:"review"`
	Submission SubmissionResponse `json:"submission"`
}

// NewPeerReviewResponse converts a peer review model.
func NewPeerReviewResponse(model models.PeerReview) PeerReviewResponse {
	return PeerReviewResponse{
		ID:           model.ID,
		SubmissionID: model.SubmissionID,
		ReviewerID:   model.ReviewerID,
		TotalScore:   model.TotalScore,
		Comments:     model.Comments,
		CreatedAt:    model.CreatedAt,
	}
}

// AdminActivityListRequest defines filters for retrieving activity logs.
type AdminActivityListRequest struct {
	Page       int
	PageSize   int
	ActorID    uint
	EntityID   uint
	Action     string
	EntityType string
	Since      time.Time
}

// AdminActivityResponse serializes activity log entries.
type AdminActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AdminActivityListResponse wraps paginated activity logs.
type AdminActivityListResponse struct {
	Items      []AdminActivityResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

func metadataFromJSON(data datatypes.JSONMap) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(data)
}

// NewAdminActivityResponse converts a model into an activity DTO.
func NewAdminActivityResponse(entry models.ActivityLog) AdminActivityResponse {
	return AdminActivityResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadataFromJSON(entry.Metadata),
		CreatedAt:  entry.CreatedAt,
	}
}

// NewPagination computes pagination metadata.
func NewPagination(page, pageSize int, total int64) PaginationMeta {
	if page < 1 {
		page = 1
	}
	meta := PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// GradeDistributionResponse counts scored submissions per percentage band.
type GradeDistributionResponse map[string]int64

// WeeklyEngagementPoint counts submissions in one week.
type WeeklyEngagementPoint struct {
	WeekStart   time.Time `json:"week_start"`
	Submissions int64     `json:"submissions"`
}

// GradingAnalyticsResponse summarizes grading outcomes for staff.
type GradingAnalyticsResponse struct {
	AssignmentID      *uint                     `json:"assignment_id,omitempty"`
	ActiveStudents    int64                     `json:"active_students"`
	Submissions       int64                     `json:"submissions"`
	OnTimeSubmissions int64                     `json:"on_time_submissions"`
	LateSubmissions   int64                     `json:"late_submissions"`
	AwaitingManual    int64                     `json:"awaiting_manual"`
	PeerBlended       int64                     `json:"peer_blended"`
	PassRate          float64                   `json:"pass_rate"`
	AveragePercentage float64                   `json:"average_percentage"`
	GradeDistribution GradeDistributionResponse `json:"grade_distribution"`
	LevelDistribution map[string]int64          `json:"level_distribution"`
	WeeklyEngagement  []WeeklyEngagementPoint   `json:"weekly_engagement"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	CacheHit          bool                      `json:"cache_hit"`
}
