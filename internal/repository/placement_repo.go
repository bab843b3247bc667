package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// PlacementRepository persists placement tests and their results.
type PlacementRepository interface {
	CreateTest(ctx context.Context, test *models.PlacementTest) error
	GetTest(ctx context.Context, id uint) (models.PlacementTest, error)
	SaveResult(ctx context.Context, result *models.PlacementResult) error
	LatestResult(ctx context.Context, studentID uint) (models.PlacementResult, error)
}

type placementRepository struct {
	db *gorm.DB
}

// NewPlacementRepository constructs the placement repository.
func NewPlacementRepository(db *gorm.DB) PlacementRepository {
	return &placementRepository{db: db}
}

func (r *placementRepository) CreateTest(ctx context.Context, test *models.PlacementTest) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *placementRepository) GetTest(ctx context.Context, id uint) (models.PlacementTest, error) {
	var test models.PlacementTest
	if err := r.db.WithContext(ctx).Where("active = ?", true).First(&test, id).Error; err != nil {
		return models.PlacementTest{}, err
	}
	return test, nil
}

// SaveResult stores the result and moves the student to the assigned level.
func (r *placementRepository) SaveResult(ctx context.Context, result *models.PlacementResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(result).Error; err != nil {
			return err
		}

		update := tx.Model(&models.Student{}).
			Where("id = ?", result.StudentID).
			Update("level", result.AssignedLevel)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *placementRepository) LatestResult(ctx context.Context, studentID uint) (models.PlacementResult, error) {
	var result models.PlacementResult
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("completed_at DESC").
		Order("id DESC").
		First(&result).Error; err != nil {
		return models.PlacementResult{}, err
	}
	return result, nil
}
