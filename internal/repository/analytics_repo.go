package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AnalyticsRepository supplies data for grading analytics.
type AnalyticsRepository interface {
	ListScoredSubmissions(ctx context.Context, assignmentID *uint) ([]models.Submission, error)
	CountStudentsByLevel(ctx context.Context) (map[string]int64, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository constructs the analytics repository.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

// ListScoredSubmissions returns every non-draft submission, optionally for one assignment.
func (r *analyticsRepository) ListScoredSubmissions(ctx context.Context, assignmentID *uint) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).
		Where("status <> ?", models.SubmissionStatusDraft).
		Preload("Assignment")
	if assignmentID != nil {
		query = query.Where("assignment_id = ?", *assignmentID)
	}

	var submissions []models.Submission
	err := query.Order("id ASC").Find(&submissions).Error
	return submissions, err
}

func (r *analyticsRepository) CountStudentsByLevel(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Level string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Select("level, COUNT(*) AS total").
		Group("level").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		level := row.Level
		if level == "" {
			level = "unplaced"
		}
		counts[level] += row.Total
	}
	return counts, nil
}
