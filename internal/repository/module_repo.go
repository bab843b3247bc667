package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// ModuleRepository persists learning modules, quiz attempts and progress.
type ModuleRepository interface {
	Create(ctx context.Context, module *models.LearningModule) error
	GetByID(ctx context.Context, id uint) (models.LearningModule, error)
	List(ctx context.Context, level string) ([]models.LearningModule, error)
	RecordAttempt(ctx context.Context, attempt *models.QuizAttempt, maxAttempts int) (models.ModuleProgress, error)
	ListAttempts(ctx context.Context, moduleID, studentID uint) ([]models.QuizAttempt, error)
	ListProgress(ctx context.Context, studentID uint) ([]models.ModuleProgress, error)
}

type moduleRepository struct {
	db *gorm.DB
}

// NewModuleRepository constructs the module repository.
func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{db: db}
}

func (r *moduleRepository) Create(ctx context.Context, module *models.LearningModule) error {
	return r.db.WithContext(ctx).Create(module).Error
}

func (r *moduleRepository) GetByID(ctx context.Context, id uint) (models.LearningModule, error) {
	var module models.LearningModule
	if err := r.db.WithContext(ctx).First(&module, id).Error; err != nil {
		return models.LearningModule{}, err
	}
	return module, nil
}

func (r *moduleRepository) List(ctx context.Context, level string) ([]models.LearningModule, error) {
	query := r.db.WithContext(ctx).Model(&models.LearningModule{})
	if level != "" {
		query = query.Where("level = ?", level)
	}

	var modules []models.LearningModule
	if err := query.Order("id ASC").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// RecordAttempt numbers and stores the attempt, then folds it into the
// student's progress. The best score only ever grows and completion is sticky.
func (r *moduleRepository) RecordAttempt(ctx context.Context, attempt *models.QuizAttempt, maxAttempts int) (models.ModuleProgress, error) {
	var progress models.ModuleProgress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("module_id = ? AND student_id = ?", attempt.ModuleID, attempt.StudentID).
			First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			progress = models.ModuleProgress{ModuleID: attempt.ModuleID, StudentID: attempt.StudentID}
			if err := tx.Create(&progress).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if maxAttempts > 0 && progress.Attempts >= maxAttempts {
			return ErrLimitReached
		}

		attempt.AttemptNumber = progress.Attempts + 1
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}

		previous := progress.Attempts
		progress.Attempts++
		if attempt.Percentage > progress.BestQuizScore {
			progress.BestQuizScore = attempt.Percentage
		}
		if attempt.Passed && !progress.Completed {
			completedAt := attempt.CreatedAt
			if completedAt.IsZero() {
				completedAt = time.Now().UTC()
			}
			progress.Completed = true
			progress.CompletedAt = &completedAt
		}

		result := tx.Model(&progress).
			Where("attempts = ?", previous).
			Select("attempts", "best_quiz_score", "completed", "completed_at", "updated_at").
			Updates(&progress)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return models.ModuleProgress{}, err
	}

	return progress, nil
}

func (r *moduleRepository) ListAttempts(ctx context.Context, moduleID, studentID uint) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	if err := r.db.WithContext(ctx).
		Where("module_id = ? AND student_id = ?", moduleID, studentID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *moduleRepository) ListProgress(ctx context.Context, studentID uint) ([]models.ModuleProgress, error) {
	var progress []models.ModuleProgress
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("module_id ASC").
		Find(&progress).Error; err != nil {
		return nil, err
	}
	return progress, nil
}
