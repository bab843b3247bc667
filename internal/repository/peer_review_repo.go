package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// PeerReviewRepository stores reviews left by classmates.
type PeerReviewRepository interface {
	Create(ctx context.Context, review *models.PeerReview) error
	Exists(ctx context.Context, submissionID, reviewerID uint) (bool, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.PeerReview, error)
}

type peerReviewRepository struct {
	db *gorm.DB
}

// NewPeerReviewRepository constructs the peer review repository.
func NewPeerReviewRepository(db *gorm.DB) PeerReviewRepository {
	return &peerReviewRepository{db: db}
}

func (r *peerReviewRepository) Create(ctx context.Context, review *models.PeerReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *peerReviewRepository) Exists(ctx context.Context, submissionID, reviewerID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PeerReview{}).
		Where("submission_id = ? AND reviewer_id = ?", submissionID, reviewerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *peerReviewRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.PeerReview, error) {
	var reviews []models.PeerReview
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}
