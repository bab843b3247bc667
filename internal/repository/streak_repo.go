package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// StreakRepository persists streak counters, freezes, sessions and badges.
type StreakRepository interface {
	GetOrCreate(ctx context.Context, studentID uint) (models.StreakRecord, error)
	ListFreezes(ctx context.Context, studentID uint) ([]models.StreakFreeze, error)
	ListByStudents(ctx context.Context, studentIDs []uint) ([]models.StreakRecord, error)
	ListUnusedFreezes(ctx context.Context, studentIDs []uint) ([]models.StreakFreeze, error)
	CreateFreeze(ctx context.Context, freeze *models.StreakFreeze) error
	SaveTransition(ctx context.Context, record *models.StreakRecord, consumedFreeze *uint, usedAt time.Time) error
	Top(ctx context.Context, limit int) ([]models.StreakRecord, error)
	StartSession(ctx context.Context, session *models.AttendanceSession) error
	EndSession(ctx context.Context, studentID uint, endedAt time.Time) (models.AttendanceSession, error)
	ListSessions(ctx context.Context, studentID uint, from, to time.Time) ([]models.AttendanceSession, error)
	AwardBadge(ctx context.Context, badge *models.UserBadge) (bool, error)
	ListBadges(ctx context.Context, studentID uint) ([]models.UserBadge, error)
}

type streakRepository struct {
	db *gorm.DB
}

// NewStreakRepository constructs the streak repository.
func NewStreakRepository(db *gorm.DB) StreakRepository {
	return &streakRepository{db: db}
}

func (r *streakRepository) GetOrCreate(ctx context.Context, studentID uint) (models.StreakRecord, error) {
	var record models.StreakRecord
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&record).Error
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StreakRecord{}, err
	}

	record = models.StreakRecord{StudentID: studentID}
	create := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "student_id"}}, DoNothing: true}).
		Create(&record)
	if create.Error != nil {
		return models.StreakRecord{}, create.Error
	}
	if create.RowsAffected == 0 {
		// Another request created the row first.
		if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&record).Error; err != nil {
			return models.StreakRecord{}, err
		}
	}
	return record, nil
}

func (r *streakRepository) ListFreezes(ctx context.Context, studentID uint) ([]models.StreakFreeze, error) {
	var freezes []models.StreakFreeze
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&freezes).Error; err != nil {
		return nil, err
	}
	return freezes, nil
}

func (r *streakRepository) ListByStudents(ctx context.Context, studentIDs []uint) ([]models.StreakRecord, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var records []models.StreakRecord
	if err := r.db.WithContext(ctx).Where("student_id IN ?", studentIDs).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListUnusedFreezes returns freezes not yet consumed. Expiry is left to the caller.
func (r *streakRepository) ListUnusedFreezes(ctx context.Context, studentIDs []uint) ([]models.StreakFreeze, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var freezes []models.StreakFreeze
	if err := r.db.WithContext(ctx).
		Where("student_id IN ? AND used_at IS NULL", studentIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&freezes).Error; err != nil {
		return nil, err
	}
	return freezes, nil
}

func (r *streakRepository) CreateFreeze(ctx context.Context, freeze *models.StreakFreeze) error {
	return r.db.WithContext(ctx).Create(freeze).Error
}

// SaveTransition writes the new counters only if the version read by the
// caller is still current, and marks the consumed freeze in the same
// transaction. Either guard failing yields ErrConflict and nothing is written.
func (r *streakRepository) SaveTransition(ctx context.Context, record *models.StreakRecord, consumedFreeze *uint, usedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expected := record.Version
		update := tx.Model(&models.StreakRecord{}).
			Where("id = ? AND version = ?", record.ID, expected).
			Updates(map[string]interface{}{
				"current_streak":     record.CurrentStreak,
				"longest_streak":     record.LongestStreak,
				"last_activity_date": record.LastActivityDate,
				"milestones":         record.Milestones,
				"version":            expected + 1,
				"updated_at":         usedAt,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrConflict
		}

		if consumedFreeze != nil {
			consume := tx.Model(&models.StreakFreeze{}).
				Where("id = ? AND student_id = ? AND used_at IS NULL", *consumedFreeze, record.StudentID).
				Update("used_at", usedAt)
			if consume.Error != nil {
				return consume.Error
			}
			if consume.RowsAffected == 0 {
				return ErrConflict
			}
		}

		record.Version = expected + 1
		record.UpdatedAt = usedAt
		return nil
	})
}

func (r *streakRepository) Top(ctx context.Context, limit int) ([]models.StreakRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var records []models.StreakRecord
	if err := r.db.WithContext(ctx).
		Where("current_streak > 0").
		Order("current_streak DESC").
		Order("longest_streak DESC").
		Order("student_id ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *streakRepository) StartSession(ctx context.Context, session *models.AttendanceSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// EndSession closes the most recent open session for the student.
func (r *streakRepository) EndSession(ctx context.Context, studentID uint, endedAt time.Time) (models.AttendanceSession, error) {
	var session models.AttendanceSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ? AND ended_at IS NULL", studentID).
			Order("started_at DESC").
			First(&session).Error; err != nil {
			return err
		}

		update := tx.Model(&models.AttendanceSession{}).
			Where("id = ? AND ended_at IS NULL", session.ID).
			Update("ended_at", endedAt)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrConflict
		}
		session.EndedAt = &endedAt
		return nil
	})
	if err != nil {
		return models.AttendanceSession{}, err
	}
	return session, nil
}

func (r *streakRepository) ListSessions(ctx context.Context, studentID uint, from, to time.Time) ([]models.AttendanceSession, error) {
	var sessions []models.AttendanceSession
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("started_at >= ? AND started_at < ?", from, to).
		Order("started_at ASC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// AwardBadge inserts the badge unless the student already holds it and
// reports whether a new row was written.
func (r *streakRepository) AwardBadge(ctx context.Context, badge *models.UserBadge) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "code"}},
			DoNothing: true,
		}).
		Create(badge)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *streakRepository) ListBadges(ctx context.Context, studentID uint) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("awarded_at ASC").
		Find(&badges).Error; err != nil {
		return nil, err
	}
	return badges, nil
}
