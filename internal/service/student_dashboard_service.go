package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const dashboardRecentLimit = 5

// StudentDashboardService produces aggregated dashboard metrics.
type StudentDashboardService interface {
	GetDashboard(ctx context.Context, studentID uint) (dto.StudentDashboardResponse, error)
	Invalidate(ctx context.Context, studentID uint)
}

type studentDashboardService struct {
	students    repository.StudentRepository
	submissions repository.SubmissionRepository
	modules     repository.ModuleRepository
	streaks     repository.StreakRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	location    *time.Location
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStudentDashboardService builds the dashboard aggregator.
func NewStudentDashboardService(students repository.StudentRepository, submissions repository.SubmissionRepository, modules repository.ModuleRepository, streaks repository.StreakRepository, cache *redis.Client, ttl time.Duration, location *time.Location, logger zerolog.Logger) StudentDashboardService {
	if location == nil {
		location = time.UTC
	}
	return &studentDashboardService{
		students:    students,
		submissions: submissions,
		modules:     modules,
		streaks:     streaks,
		cache:       cache,
		cacheTTL:    ttl,
		location:    location,
		logger:      logger.With().Str("component", "student_dashboard_service").Logger(),
		now:         time.Now,
	}
}

func dashboardCacheKey(studentID uint) string {
	return fmt.Sprintf("dashboard:student:%d", studentID)
}

func (s *studentDashboardService) GetDashboard(ctx context.Context, studentID uint) (dto.StudentDashboardResponse, error) {
	cacheKey := dashboardCacheKey(studentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StudentDashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("student_id", studentID).Msg("dashboard cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentDashboardResponse{}, ErrStudentNotFound
		}
		return dto.StudentDashboardResponse{}, err
	}

	submissions, _, err := s.submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	recent, err := s.submissions.ListRecentByStudent(ctx, studentID, dashboardRecentLimit)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	progress, err := s.modules.ListProgress(ctx, studentID)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	record, err := s.streaks.GetOrCreate(ctx, studentID)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	freezes, err := s.streaks.ListFreezes(ctx, studentID)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	badges, err := s.streaks.ListBadges(ctx, studentID)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}

	now := s.now()
	response := dto.StudentDashboardResponse{
		StudentID:         student.ID,
		Level:             student.Level,
		Summary:           summarize(submissions, progress),
		Streak:            streakView(record, toFreezes(freezes), now, s.location),
		Badges:            dto.NewBadgeResponseSlice(badges),
		Modules:           make([]dto.ModuleProgressResponse, 0, len(progress)),
		RecentSubmissions: make([]dto.SubmissionActivity, 0, len(recent)),
		GeneratedAt:       now.UTC(),
	}
	for _, p := range progress {
		response.Modules = append(response.Modules, dto.NewModuleProgressResponse(p))
	}
	for _, submission := range recent {
		response.RecentSubmissions = append(response.RecentSubmissions, dto.SubmissionActivity{
			SubmissionID:       submission.ID,
			AssignmentID:       submission.AssignmentID,
			AssignmentName:     submission.Assignment.Title,
			Status:             submission.Status,
			FinalScore:         submission.FinalScore,
			Percentage:         submission.Percentage,
			Passed:             submission.Passed,
			LatePenaltyPercent: submission.LatePenaltyPercent,
			SubmittedAt:        submission.SubmittedAt,
		})
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *studentDashboardService) Invalidate(ctx context.Context, studentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to invalidate dashboard cache")
	}
}

func summarize(submissions []models.Submission, progress []models.ModuleProgress) dto.ProgressSummary {
	summary := dto.ProgressSummary{}
	var percentageTotal int

	for _, submission := range submissions {
		if submission.IsDraft() {
			continue
		}
		summary.Submitted++
		if submission.IsGraded() {
			summary.Graded++
		}
		if submission.Passed {
			summary.Passed++
		}
		percentageTotal += submission.Percentage
	}
	if summary.Submitted > 0 {
		summary.AveragePercentage = math.Round(float64(percentageTotal)/float64(summary.Submitted)*100) / 100
	}

	for _, p := range progress {
		if p.Completed {
			summary.ModulesCompleted++
		}
	}
	return summary
}
