package models

import (
	"time"

	"gorm.io/datatypes"
)

// StreakRecord holds one student's streak counters. Version guards concurrent writers.
type StreakRecord struct {
	ID               uint                     `gorm:"primaryKey" json:"id"`
	StudentID        uint                     `gorm:"not null;uniqueIndex" json:"student_id"`
	CurrentStreak    int                      `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int                      `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate *time.Time               `json:"last_activity_date"`
	Milestones       datatypes.JSONSlice[int] `json:"milestones"`
	Version          int                      `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// StreakFreeze bridges one missed day when consumed.
type StreakFreeze struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	StudentID uint       `gorm:"not null;index" json:"student_id"`
	Reason    string     `gorm:"size:128" json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// AttendanceSession is a single study session.
type AttendanceSession struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	StudentID uint       `gorm:"not null;index" json:"student_id"`
	StartedAt time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// UserBadge is awarded once per student and code.
type UserBadge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_user_badge_code" json:"student_id"`
	Code      string    `gorm:"size:64;not null;uniqueIndex:idx_user_badge_code" json:"code"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}
