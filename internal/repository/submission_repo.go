package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *string
	Page         int
	PageSize     int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetLatest(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	ListRecentByStudent(ctx context.Context, studentID uint, limit int) ([]models.Submission, error)
	CreateDraft(ctx context.Context, submission *models.Submission) error
	UpdateDraft(ctx context.Context, submission *models.Submission) error
	Finalize(ctx context.Context, submission *models.Submission) error
	SaveGrade(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error
	SaveScore(ctx context.Context, submission *models.Submission) error
}

var (
	draftColumns = []string{"answers", "updated_at"}
	scoreColumns = []string{
		"raw_score", "days_late", "late_penalty_percent", "final_score", "percentage",
		"passed", "peer_review_score", "peer_blended", "version", "updated_at",
	}
	finalizeColumns = append([]string{"status", "answers", "evaluations", "auto_score", "submitted_at"}, scoreColumns...)
	gradeColumns    = append([]string{"status", "manual_item_scores", "manual_score", "feedback", "graded_by", "graded_at"}, scoreColumns...)
)

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var submissions []models.Submission
	if err := query.Preload("Student").Order("created_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Preload("History", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("graded_at DESC")
		}).
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetLatest(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListRecentByStudent(ctx context.Context, studentID uint, limit int) ([]models.Submission, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Assignment").
		Where("student_id = ?", studentID).
		Where("status <> ?", models.SubmissionStatusDraft).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) CreateDraft(ctx context.Context, submission *models.Submission) error {
	return translateInsert(r.db.WithContext(ctx).Omit("Assignment", "Student", "History").Create(submission).Error)
}

// UpdateDraft leaves the version alone; only score writers bump it.
func (r *submissionRepository) UpdateDraft(ctx context.Context, submission *models.Submission) error {
	result := r.db.WithContext(ctx).Model(submission).
		Where("status = ?", models.SubmissionStatusDraft).
		Select(draftColumns).
		Updates(submission)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Finalize stores a graded submission and bumps the assignment counter in one
// transaction. A draft that was submitted concurrently, or a second first-time
// submission for the same learner, yields ErrConflict.
func (r *submissionRepository) Finalize(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if submission.ID == 0 {
			if err := translateInsert(tx.Omit("Assignment", "Student", "History").Create(submission).Error); err != nil {
				return err
			}
		} else if err := guardedUpdate(tx, submission, finalizeColumns, "status = ?", models.SubmissionStatusDraft); err != nil {
			return err
		}

		return tx.Model(&models.Assignment{}).
			Where("id = ?", submission.AssignmentID).
			UpdateColumn("total_submissions", gorm.Expr("total_submissions + ?", 1)).
			Error
	})
}

// SaveGrade writes a manual grade and its history row. The row must still be
// at the version the caller composed from.
func (r *submissionRepository) SaveGrade(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardedUpdate(tx, submission, gradeColumns, "status <> ?", models.SubmissionStatusDraft); err != nil {
			return err
		}

		if history == nil {
			return nil
		}
		history.SubmissionID = submission.ID
		return tx.Create(history).Error
	})
}

// SaveScore rewrites the composed score columns. A grade or review committed
// since the caller loaded the row yields ErrConflict.
func (r *submissionRepository) SaveScore(ctx context.Context, submission *models.Submission) error {
	return guardedUpdate(r.db.WithContext(ctx), submission, scoreColumns, "status <> ?", models.SubmissionStatusDraft)
}

// guardedUpdate writes columns only when the stored version matches the one
// the caller read, bumping it on success.
func guardedUpdate(tx *gorm.DB, submission *models.Submission, columns []string, guard string, args ...interface{}) error {
	expected := submission.Version
	submission.Version = expected + 1
	result := tx.Model(submission).
		Where("version = ?", expected).
		Where(guard, args...).
		Select(columns).
		Updates(submission)
	if result.Error == nil && result.RowsAffected == 0 {
		result.Error = ErrConflict
	}
	if result.Error != nil {
		submission.Version = expected
		return result.Error
	}
	return nil
}

func translateInsert(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}
