package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/streak"
)

const analyticsEngagementWeeks = 8

// AnalyticsService aggregates grading outcomes for the staff dashboard.
type AnalyticsService interface {
	Summary(ctx context.Context, assignmentID *uint) (dto.GradingAnalyticsResponse, error)
}

type analyticsService struct {
	repo     repository.AnalyticsRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAnalyticsService constructs the analytics service.
func NewAnalyticsService(repo repository.AnalyticsRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AnalyticsService {
	return &analyticsService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "analytics_service").Logger(),
		now:      time.Now,
	}
}

func analyticsCacheKey(assignmentID *uint) string {
	if assignmentID == nil {
		return "analytics:grading:all"
	}
	return fmt.Sprintf("analytics:grading:%d", *assignmentID)
}

func (s *analyticsService) Summary(ctx context.Context, assignmentID *uint) (dto.GradingAnalyticsResponse, error) {
	cacheKey := analyticsCacheKey(assignmentID)
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/analytics")
	ctx, span := tracer.Start(ctx, "analytics.aggregate")
	span.SetAttributes(attribute.String("analytics.cache_key", cacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.GradingAnalyticsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read analytics cache")
			span.RecordError(err)
		}
	}

	submissions, err := s.repo.ListScoredSubmissions(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_submissions_failed")
		return dto.GradingAnalyticsResponse{}, err
	}

	levels, err := s.repo.CountStudentsByLevel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_levels_failed")
		return dto.GradingAnalyticsResponse{}, err
	}

	summary := s.buildSummary(submissions, levels)
	summary.AssignmentID = assignmentID
	span.SetAttributes(attribute.Int("analytics.submission_count", len(submissions)))

	if s.cache != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store analytics cache")
				span.RecordError(err)
			}
		}
	}

	return summary, nil
}

func (s *analyticsService) buildSummary(submissions []models.Submission, levels map[string]int64) dto.GradingAnalyticsResponse {
	now := s.now().UTC()
	distribution := dto.GradeDistributionResponse{
		"90-100": 0,
		"75-89":  0,
		"60-74":  0,
		"0-59":   0,
	}

	var (
		passed       int64
		percentTotal int
		students     = map[uint]struct{}{}
		weekly       = map[time.Time]int64{}
		cutoff       = streak.WeekStart(now, time.UTC).AddDate(0, 0, -7*(analyticsEngagementWeeks-1))
		summary      = dto.GradingAnalyticsResponse{LevelDistribution: levels}
	)

	for _, submission := range submissions {
		summary.Submissions++
		students[submission.StudentID] = struct{}{}

		if submission.DaysLate > 0 {
			summary.LateSubmissions++
		} else {
			summary.OnTimeSubmissions++
		}
		if submission.PeerBlended {
			summary.PeerBlended++
		}
		if !submission.IsGraded() && awaitsManualGrading(submission) {
			summary.AwaitingManual++
		}
		if submission.Passed {
			passed++
		}
		percentTotal += submission.Percentage

		switch {
		case submission.Percentage >= 90:
			distribution["90-100"]++
		case submission.Percentage >= 75:
			distribution["75-89"]++
		case submission.Percentage >= 60:
			distribution["60-74"]++
		default:
			distribution["0-59"]++
		}

		if submission.SubmittedAt != nil && !submission.SubmittedAt.Before(cutoff) {
			weekly[streak.WeekStart(*submission.SubmittedAt, time.UTC)]++
		}
	}

	weeks := make([]time.Time, 0, len(weekly))
	for week := range weekly {
		weeks = append(weeks, week)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })

	engagement := make([]dto.WeeklyEngagementPoint, 0, len(weeks))
	for _, week := range weeks {
		engagement = append(engagement, dto.WeeklyEngagementPoint{WeekStart: week, Submissions: weekly[week]})
	}

	if summary.Submissions > 0 {
		summary.PassRate = math.Round(float64(passed)/float64(summary.Submissions)*1000) / 10
		summary.AveragePercentage = math.Round(float64(percentTotal)/float64(summary.Submissions)*10) / 10
	}
	summary.ActiveStudents = int64(len(students))
	summary.GradeDistribution = distribution
	summary.WeeklyEngagement = engagement
	summary.GeneratedAt = now
	return summary
}

func awaitsManualGrading(submission models.Submission) bool {
	for _, result := range submission.Evaluations {
		if result.NeedsManual {
			return true
		}
	}
	return false
}
