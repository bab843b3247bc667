package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAssignmentInvalidDueDate indicates the due date is malformed or already passed.
	ErrAssignmentInvalidDueDate = errors.New("assignment due date must be a future RFC3339 timestamp")
)

// AssignmentService exposes assignment domain use cases.
type AssignmentService interface {
	List(ctx context.Context, req dto.AssignmentListRequest, actor ActivityActor) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, id uint, actor ActivityActor) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor ActivityActor) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor ActivityActor) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, req dto.AssignmentListRequest, actor ActivityActor) (dto.AssignmentListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	assignments, total, err := s.repo.List(ctx, repository.AssignmentFilter{
		Search:   req.Search,
		Sort:     req.Sort,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(assignments, actor.IsStaff()),
		Pagination: dto.NewPagination(page, pageSize, total),
	}, nil
}

func (s *assignmentService) Get(ctx context.Context, id uint, actor ActivityActor) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment, actor.IsStaff()), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor ActivityActor) (dto.AssignmentResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/assignment")
	ctx, span := tracer.Start(ctx, "assignment.create")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssignmentResponse{}, err
	}

	dueDate, err := s.parseDueDate(payload.DueDate)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	questions, err := parseQuestions(payload.Questions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_questions")
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		Title:               strings.TrimSpace(payload.Title),
		Description:         strings.TrimSpace(payload.Description),
		DueDate:             dueDate,
		Questions:           datatypes.NewJSONSlice(questions),
		TotalPoints:         grading.TotalPoints(questions),
		PassingScore:        60,
		AllowLateSubmission: payload.AllowLateSubmission,
		LatePenaltyPerDay:   payload.LatePenaltyPerDay,
		MaxLateDays:         payload.MaxLateDays,
		InstructorWeight:    100,
	}
	if payload.PassingScore != nil {
		assignment.PassingScore = *payload.PassingScore
	}
	applyPeerReviewSettings(&assignment, payload.PeerReview)
	if payload.Rubric != nil {
		assignment.Rubric = datatypes.NewJSONType(normalizeRubric(*payload.Rubric))
	}

	if err := validateAssignmentPolicy(assignment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_policy")
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_failed")
		return dto.AssignmentResponse{}, err
	}

	span.SetAttributes(
		attribute.Int64("assignment.id", int64(assignment.ID)),
		attribute.Int("assignment.questions", len(questions)),
	)
	s.logger.Info().Uint("assignment_id", assignment.ID).Int("questions", len(questions)).Msg("assignment created")
	s.record(ctx, actor, "assignment.created", assignment)

	return dto.NewAssignmentResponse(assignment, true), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor ActivityActor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		assignment.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.DueDate != nil {
		dueDate, err := s.parseDueDate(*payload.DueDate)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.DueDate = dueDate
	}
	if len(payload.Questions) > 0 {
		questions, err := parseQuestions(payload.Questions)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.Questions = datatypes.NewJSONSlice(questions)
		assignment.TotalPoints = grading.TotalPoints(questions)
	}
	if payload.PassingScore != nil {
		assignment.PassingScore = *payload.PassingScore
	}
	if payload.AllowLateSubmission != nil {
		assignment.AllowLateSubmission = *payload.AllowLateSubmission
	}
	if payload.LatePenaltyPerDay != nil {
		assignment.LatePenaltyPerDay = *payload.LatePenaltyPerDay
	}
	if payload.MaxLateDays != nil {
		assignment.MaxLateDays = *payload.MaxLateDays
	}
	if payload.PeerReview != nil {
		applyPeerReviewSettings(&assignment, payload.PeerReview)
	}
	if payload.Rubric != nil {
		assignment.Rubric = datatypes.NewJSONType(normalizeRubric(*payload.Rubric))
	}

	if err := validateAssignmentPolicy(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")
	s.record(ctx, actor, "assignment.updated", assignment)

	return dto.NewAssignmentResponse(assignment, true), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")
	s.record(ctx, actor, "assignment.deleted", models.Assignment{ID: id})
	return nil
}

func (s *assignmentService) parseDueDate(value string) (time.Time, error) {
	dueDate, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrAssignmentInvalidDueDate, err)
	}
	if !dueDate.After(s.now()) {
		return time.Time{}, ErrAssignmentInvalidDueDate
	}
	return dueDate.UTC(), nil
}

func (s *assignmentService) record(ctx context.Context, actor ActivityActor, action string, assignment models.Assignment) {
	id := assignment.ID
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "assignment",
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"title":        assignment.Title,
			"total_points": assignment.TotalPoints,
		},
	})
}

func applyPeerReviewSettings(assignment *models.Assignment, settings *dto.PeerReviewSettings) {
	if settings == nil {
		return
	}
	assignment.PeerReviewEnabled = settings.Enabled
	assignment.PeerReviewsRequired = settings.ReviewsRequired
	if settings.Enabled {
		assignment.InstructorWeight = settings.InstructorWeight
		assignment.PeerWeight = settings.PeerWeight
		return
	}
	assignment.InstructorWeight = 100
	assignment.PeerWeight = 0
}

// validateAssignmentPolicy runs the composer's own configuration checks so a
// bad policy is rejected at write time rather than at the first submission.
func validateAssignmentPolicy(assignment models.Assignment) error {
	if assignment.TotalPoints <= 0 {
		return fmt.Errorf("%w: total points must be positive", grading.ErrConfiguration)
	}
	if err := (grading.LatePolicy{
		PerDayPenaltyPercent: assignment.LatePenaltyPerDay,
		MaxLateDays:          assignment.MaxLateDays,
	}).Validate(); err != nil {
		return err
	}
	if peer := assignment.PeerReviewInput(nil); peer != nil {
		if err := peer.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func normalizeRubric(rubric grading.Rubric) grading.Rubric {
	criteria := make([]grading.Criterion, 0, len(rubric.Criteria))
	sum := 0.0
	for _, c := range rubric.Criteria {
		key := strings.TrimSpace(c.Key)
		if key == "" || c.MaxPoints <= 0 {
			continue
		}
		c.Key = key
		criteria = append(criteria, c)
		sum += c.MaxPoints
	}
	rubric.Criteria = criteria
	if rubric.Max <= 0 {
		rubric.Max = sum
	}
	return rubric
}
