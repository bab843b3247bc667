package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var (
	// ErrPlacementTestNotFound indicates the placement test is missing or inactive.
	ErrPlacementTestNotFound = errors.New("placement test not found")
	// ErrPlacementResultNotFound indicates the learner has not taken a placement test.
	ErrPlacementResultNotFound = errors.New("placement result not found")
	// ErrStudentNotFound indicates the learner does not exist.
	ErrStudentNotFound = errors.New("student not found")
)

// PlacementService grades placement tests and gates enrollment by level.
type PlacementService interface {
	CreateTest(ctx context.Context, payload dto.PlacementTestCreateRequest, actor ActivityActor) (dto.PlacementTestResponse, error)
	GetTest(ctx context.Context, id uint) (dto.PlacementTestResponse, error)
	Submit(ctx context.Context, testID uint, payload dto.PlacementSubmitRequest, actor ActivityActor) (dto.PlacementResultResponse, error)
	LatestResult(ctx context.Context, studentID uint) (dto.PlacementResultResponse, error)
	CheckEnrollment(ctx context.Context, studentID uint, courseLevel string) (dto.EnrollmentCheckResponse, error)
}

// PlacementEvent is published when a learner is placed.
type PlacementEvent struct {
	StudentID       uint    `json:"student_id"`
	PlacementTestID uint    `json:"placement_test_id"`
	PercentageScore float64 `json:"percentage_score"`
	AssignedLevel   string  `json:"assigned_level"`
}

type placementService struct {
	placements repository.PlacementRepository
	students   repository.StudentRepository
	validator  *validator.Validate
	notifier   Notifier
	publisher  events.Publisher
	activity   ActivityRecorder
	logger     zerolog.Logger
	now        func() time.Time
	async      func(func())
}

// NewPlacementService constructs the placement service.
func NewPlacementService(placements repository.PlacementRepository, students repository.StudentRepository, validate *validator.Validate, notifier Notifier, publisher events.Publisher, activity ActivityRecorder, logger zerolog.Logger) PlacementService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &placementService{
		placements: placements,
		students:   students,
		validator:  validate,
		notifier:   notifier,
		publisher:  publisher,
		activity:   activity,
		logger:     logger.With().Str("component", "placement_service").Logger(),
		now:        time.Now,
		async:      runAsync,
	}
}

func (s *placementService) CreateTest(ctx context.Context, payload dto.PlacementTestCreateRequest, actor ActivityActor) (dto.PlacementTestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PlacementTestResponse{}, err
	}

	questions, err := parseQuestions(payload.Questions)
	if err != nil {
		return dto.PlacementTestResponse{}, err
	}

	test := models.PlacementTest{
		Title:     payload.Title,
		Questions: datatypes.NewJSONSlice(questions),
		Active:    true,
	}
	if err := s.placements.CreateTest(ctx, &test); err != nil {
		return dto.PlacementTestResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "placement_test.created",
		EntityType: "placement_test",
		EntityID:   &test.ID,
		Metadata:   map[string]interface{}{"questions": len(questions)},
	})

	return dto.NewPlacementTestResponse(test), nil
}

func (s *placementService) GetTest(ctx context.Context, id uint) (dto.PlacementTestResponse, error) {
	test, err := s.loadTest(ctx, id)
	if err != nil {
		return dto.PlacementTestResponse{}, err
	}
	return dto.NewPlacementTestResponse(test), nil
}

func (s *placementService) Submit(ctx context.Context, testID uint, payload dto.PlacementSubmitRequest, actor ActivityActor) (dto.PlacementResultResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/placement")
	ctx, span := tracer.Start(ctx, "placement.submit")
	span.SetAttributes(
		attribute.Int64("placement.test_id", int64(testID)),
		attribute.Int64("placement.student_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.PlacementResultResponse{}, err
	}
	if actor.ID == 0 {
		return dto.PlacementResultResponse{}, ErrStudentRequired
	}

	test, err := s.loadTest(ctx, testID)
	if err != nil {
		span.RecordError(err)
		return dto.PlacementResultResponse{}, err
	}

	questions := []grading.Question(test.Questions)
	answers, err := decodeAnswers(questions, storedAnswers(payload.Answers))
	if err != nil {
		span.RecordError(err)
		return dto.PlacementResultResponse{}, err
	}

	placement, outcome, err := grading.ScorePlacement(questions, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement_failed")
		return dto.PlacementResultResponse{}, err
	}

	result := models.PlacementResult{
		PlacementTestID:  test.ID,
		StudentID:        actor.ID,
		PercentageScore:  placement.PercentageScore,
		AssignedLevel:    string(placement.AssignedLevel),
		CategoryScores:   datatypes.NewJSONType(placement.CategoryScores),
		SkillScores:      datatypes.NewJSONType(placement.SkillScores),
		DifficultyScores: datatypes.NewJSONType(placement.DifficultyScores),
		Strengths:        datatypes.NewJSONSlice(placement.Strengths),
		Weaknesses:       datatypes.NewJSONSlice(placement.Weaknesses),
		Feedback:         placement.Feedback,
		CompletedAt:      s.now().UTC(),
	}

	if err := s.placements.SaveResult(ctx, &result); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlacementResultResponse{}, ErrStudentNotFound
		}
		span.SetStatus(codes.Error, "persist_failed")
		return dto.PlacementResultResponse{}, err
	}

	observability.PlacementLevels().WithLabelValues(result.AssignedLevel).Inc()
	observability.GradingOutcomes().WithLabelValues("placement", observability.PassLabel(outcome.Passed)).Inc()
	span.SetAttributes(attribute.String("placement.level", result.AssignedLevel))
	s.logger.Info().
		Uint("student_id", actor.ID).
		Float64("percentage", result.PercentageScore).
		Str("level", result.AssignedLevel).
		Msg("placement completed")

	notifyAsync(s.async, s.notifier, s.logger, ctx, actor.ID, models.NotificationTypePlacement, result.Feedback)
	publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectPlacementCompleted, PlacementEvent{
		StudentID:       actor.ID,
		PlacementTestID: test.ID,
		PercentageScore: result.PercentageScore,
		AssignedLevel:   result.AssignedLevel,
	})

	return dto.NewPlacementResultResponse(result), nil
}

func (s *placementService) LatestResult(ctx context.Context, studentID uint) (dto.PlacementResultResponse, error) {
	result, err := s.placements.LatestResult(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlacementResultResponse{}, ErrPlacementResultNotFound
		}
		return dto.PlacementResultResponse{}, err
	}
	return dto.NewPlacementResultResponse(result), nil
}

func (s *placementService) CheckEnrollment(ctx context.Context, studentID uint, courseLevel string) (dto.EnrollmentCheckResponse, error) {
	level, err := grading.ParseLevel(courseLevel)
	if err != nil {
		return dto.EnrollmentCheckResponse{}, fmt.Errorf("course level: %w", err)
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentCheckResponse{}, ErrStudentNotFound
		}
		return dto.EnrollmentCheckResponse{}, err
	}

	return dto.EnrollmentCheckResponse{
		StudentLevel: student.Level,
		CourseLevel:  string(level),
		Allowed:      grading.CanEnroll(grading.Level(student.Level), level),
	}, nil
}

func (s *placementService) loadTest(ctx context.Context, id uint) (models.PlacementTest, error) {
	test, err := s.placements.GetTest(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlacementTest{}, ErrPlacementTestNotFound
		}
		return models.PlacementTest{}, err
	}
	return test, nil
}
