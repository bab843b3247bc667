package dto

import (
	"time"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// StreakResponse reports a learner's streak counters.
type StreakResponse struct {
	StudentID        uint       `json:"student_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date"`
	Milestones       []int      `json:"milestones"`
	AvailableFreezes int        `json:"available_freezes"`
}

// StreakActivityResponse is returned after recording activity.
type StreakActivityResponse struct {
	Streak         StreakResponse `json:"streak"`
	Outcome        string         `json:"outcome"`
	FreezeConsumed bool           `json:"freeze_consumed"`
	NewMilestones  []int          `json:"new_milestones"`
}

// FreezeGrantRequest grants a streak freeze to a learner.
type FreezeGrantRequest struct {
	StudentID uint   `json:"student_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"omitempty,max=128"`
}

// FreezeResponse serializes a streak freeze.
type FreezeResponse struct {
	ID        uint       `json:"id"`
	StudentID uint       `json:"student_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionResponse serializes an attendance session.
type SessionResponse struct {
	ID        uint       `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// LeaderboardEntry is one row of the streak leaderboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	StudentID     uint   `json:"student_id"`
	Name          string `json:"name"`
	CurrentStreak int    `json:"current_streak"`
}

// BadgeResponse serializes an awarded badge.
type BadgeResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}

// NewStreakResponse converts a streak record.
func NewStreakResponse(model models.StreakRecord, availableFreezes int) StreakResponse {
	return StreakResponse{
		StudentID:        model.StudentID,
		CurrentStreak:    model.CurrentStreak,
		LongestStreak:    model.LongestStreak,
		LastActivityDate: model.LastActivityDate,
		Milestones:       append([]int{}, model.Milestones...),
		AvailableFreezes: availableFreezes,
	}
}

// NewFreezeResponse converts a freeze model.
func NewFreezeResponse(model models.StreakFreeze) FreezeResponse {
	return FreezeResponse{
		ID:        model.ID,
		StudentID: model.StudentID,
		Reason:    model.Reason,
		ExpiresAt: model.ExpiresAt,
		UsedAt:    model.UsedAt,
		CreatedAt: model.CreatedAt,
	}
}

// NewSessionResponse converts a session model.
func NewSessionResponse(model models.AttendanceSession) SessionResponse {
	return SessionResponse{ID: model.ID, StartedAt: model.StartedAt, EndedAt: model.EndedAt}
}

// NewBadgeResponseSlice converts badge models.
func NewBadgeResponseSlice(items []models.UserBadge) []BadgeResponse {
	out := make([]BadgeResponse, 0, len(items))
	for _, b := range items {
		out = append(out, BadgeResponse{Code: b.Code, Name: b.Name, AwardedAt: b.AwardedAt})
	}
	return out
}
