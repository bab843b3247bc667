package service

import (
	"context"
	"errors"
	"fmt"

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
	// ErrModuleNotFound indicates the learning module does not exist.
	ErrModuleNotFound = errors.New("module not found")
	// ErrAttemptsExhausted indicates the learner used every allowed quiz attempt.
	ErrAttemptsExhausted = errors.New("maximum quiz attempts reached")
	// ErrModuleHasNoQuiz indicates the module has no quiz questions.
	ErrModuleHasNoQuiz = errors.New("module has no quiz")
)

// QuizService grades module quizzes and tracks module progress.
type QuizService interface {
	CreateModule(ctx context.Context, payload dto.ModuleCreateRequest, actor ActivityActor) (dto.ModuleResponse, error)
	ListModules(ctx context.Context, level string) ([]dto.ModuleResponse, error)
	GetModule(ctx context.Context, id uint) (dto.ModuleResponse, error)
	Attempt(ctx context.Context, moduleID uint, payload dto.QuizAttemptRequest, actor ActivityActor) (dto.QuizAttemptResponse, error)
	Progress(ctx context.Context, studentID uint) ([]dto.ModuleProgressResponse, error)
}

// QuizEvent is published after each graded attempt.
type QuizEvent struct {
	ModuleID      uint `json:"module_id"`
	StudentID     uint `json:"student_id"`
	AttemptNumber int  `json:"attempt_number"`
	Percentage    int  `json:"percentage"`
	Passed        bool `json:"passed"`
	BestQuizScore int  `json:"best_quiz_score"`
	Completed     bool `json:"completed"`
}

type quizService struct {
	modules   repository.ModuleRepository
	validator *validator.Validate
	tracker   ActivityTracker
	publisher events.Publisher
	activity  ActivityRecorder
	logger    zerolog.Logger
	async     func(func())
}

// NewQuizService constructs the module quiz service.
func NewQuizService(modules repository.ModuleRepository, validate *validator.Validate, tracker ActivityTracker, publisher events.Publisher, activity ActivityRecorder, logger zerolog.Logger) QuizService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &quizService{
		modules:   modules,
		validator: validate,
		tracker:   tracker,
		publisher: publisher,
		activity:  activity,
		logger:    logger.With().Str("component", "quiz_service").Logger(),
		async:     runAsync,
	}
}

func (s *quizService) CreateModule(ctx context.Context, payload dto.ModuleCreateRequest, actor ActivityActor) (dto.ModuleResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ModuleResponse{}, err
	}

	level, err := grading.ParseLevel(payload.Level)
	if err != nil {
		return dto.ModuleResponse{}, err
	}

	questions, err := parseQuestions(payload.Questions)
	if err != nil {
		return dto.ModuleResponse{}, err
	}

	module := models.LearningModule{
		Title:         payload.Title,
		Level:         string(level),
		QuizQuestions: datatypes.NewJSONSlice(questions),
		PassingScore:  70,
		MaxAttempts:   payload.MaxAttempts,
	}
	if payload.PassingScore != nil {
		module.PassingScore = *payload.PassingScore
	}

	if err := s.modules.Create(ctx, &module); err != nil {
		return dto.ModuleResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "module.created",
		EntityType: "module",
		EntityID:   &module.ID,
		Metadata:   map[string]interface{}{"level": module.Level, "questions": len(questions)},
	})

	return dto.NewModuleResponse(module), nil
}

func (s *quizService) ListModules(ctx context.Context, level string) ([]dto.ModuleResponse, error) {
	if level != "" {
		parsed, err := grading.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		level = string(parsed)
	}

	modules, err := s.modules.List(ctx, level)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ModuleResponse, 0, len(modules))
	for _, module := range modules {
		responses = append(responses, dto.NewModuleResponse(module))
	}
	return responses, nil
}

func (s *quizService) GetModule(ctx context.Context, id uint) (dto.ModuleResponse, error) {
	module, err := s.load(ctx, id)
	if err != nil {
		return dto.ModuleResponse{}, err
	}
	return dto.NewModuleResponse(module), nil
}

func (s *quizService) Attempt(ctx context.Context, moduleID uint, payload dto.QuizAttemptRequest, actor ActivityActor) (dto.QuizAttemptResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/quiz")
	ctx, span := tracer.Start(ctx, "quiz.attempt")
	span.SetAttributes(
		attribute.Int64("quiz.module_id", int64(moduleID)),
		attribute.Int64("quiz.student_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.QuizAttemptResponse{}, err
	}
	if actor.ID == 0 {
		return dto.QuizAttemptResponse{}, ErrStudentRequired
	}

	module, err := s.load(ctx, moduleID)
	if err != nil {
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}
	questions := []grading.Question(module.QuizQuestions)
	if len(questions) == 0 {
		return dto.QuizAttemptResponse{}, ErrModuleHasNoQuiz
	}

	stored := storedAnswers(payload.Answers)
	answers, err := decodeAnswers(questions, stored)
	if err != nil {
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}

	outcome, err := grading.Grade(questions, answers, module.PassingScore)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		return dto.QuizAttemptResponse{}, err
	}

	attempt := models.QuizAttempt{
		ModuleID:     module.ID,
		StudentID:    actor.ID,
		Answers:      datatypes.NewJSONSlice(stored),
		Evaluations:  datatypes.NewJSONSlice(outcome.Results),
		EarnedPoints: outcome.EarnedPoints,
		TotalPoints:  outcome.TotalPoints,
		Percentage:   outcome.Percentage,
		CorrectCount: outcome.CorrectCount,
		Passed:       outcome.Passed,
		NeedsManual:  outcome.NeedsManual,
		TimeSpent:    totalTimeSpent(payload.Answers),
	}

	progress, err := s.modules.RecordAttempt(ctx, &attempt, module.MaxAttempts)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrLimitReached) {
			span.SetStatus(codes.Error, "attempts_exhausted")
			return dto.QuizAttemptResponse{}, fmt.Errorf("%w: %d of %d used", ErrAttemptsExhausted, module.MaxAttempts, module.MaxAttempts)
		}
		span.SetStatus(codes.Error, "persist_failed")
		return dto.QuizAttemptResponse{}, err
	}

	observability.GradingOutcomes().WithLabelValues("quiz", observability.PassLabel(outcome.Passed)).Inc()
	span.SetAttributes(
		attribute.Int("quiz.attempt_number", attempt.AttemptNumber),
		attribute.Int("quiz.percentage", outcome.Percentage),
	)
	s.logger.Info().
		Uint("module_id", module.ID).
		Uint("student_id", actor.ID).
		Int("attempt", attempt.AttemptNumber).
		Int("percentage", outcome.Percentage).
		Int("best", progress.BestQuizScore).
		Msg("quiz attempt graded")

	if s.tracker != nil {
		detached := context.WithoutCancel(ctx)
		studentID := actor.ID
		s.async(func() {
			if _, err := s.tracker.RecordActivity(detached, studentID); err != nil {
				s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to record streak activity")
			}
		})
	}
	publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectQuizCompleted, QuizEvent{
		ModuleID:      module.ID,
		StudentID:     actor.ID,
		AttemptNumber: attempt.AttemptNumber,
		Percentage:    attempt.Percentage,
		Passed:        attempt.Passed,
		BestQuizScore: progress.BestQuizScore,
		Completed:     progress.Completed,
	})

	return dto.NewQuizAttemptResponse(attempt, progress), nil
}

func (s *quizService) Progress(ctx context.Context, studentID uint) ([]dto.ModuleProgressResponse, error) {
	progress, err := s.modules.ListProgress(ctx, studentID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ModuleProgressResponse, 0, len(progress))
	for _, p := range progress {
		responses = append(responses, dto.NewModuleProgressResponse(p))
	}
	return responses, nil
}

func (s *quizService) load(ctx context.Context, id uint) (models.LearningModule, error) {
	module, err := s.modules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.LearningModule{}, ErrModuleNotFound
		}
		return models.LearningModule{}, err
	}
	return module, nil
}
