package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var (
	// ErrScoreExceedsMax indicates a grading score surpasses the assignment total.
	ErrScoreExceedsMax = errors.New("score exceeds assignment total points")
	// ErrSubmissionNotSubmitted indicates the submission is still a draft.
	ErrSubmissionNotSubmitted = errors.New("submission has not been submitted")
	// ErrInvalidItemScore indicates an item score targets a question that is not manually graded.
	ErrInvalidItemScore = errors.New("item score does not target a manually graded question")
)

// GradingService encapsulates manual grading workflows for teachers.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	reviews     repository.PeerReviewRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    Notifier
	publisher   events.Publisher
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
	async       func(func())
}

// NewGradingService constructs the grading service.
func NewGradingService(submissions repository.SubmissionRepository, reviews repository.PeerReviewRepository, validate *validator.Validate, activity ActivityRecorder, notifier Notifier, publisher events.Publisher, logger zerolog.Logger) GradingService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &gradingService{
		submissions: submissions,
		reviews:     reviews,
		validator:   validate,
		activity:    activity,
		notifier:    notifier,
		publisher:   publisher,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
		async:       runAsync,
	}
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))

	var (
		submission models.Submission
		score      grading.SubmissionScore
		source     string
		history    models.SubmissionGradeHistory
	)
	for attempt := 1; ; attempt++ {
		var err error
		submission, err = s.submissions.GetByID(ctx, submissionID)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				span.SetStatus(codes.Error, "submission_not_found")
				return dto.SubmissionResponse{}, ErrSubmissionNotFound
			}
			span.SetStatus(codes.Error, "submission_lookup_failed")
			return dto.SubmissionResponse{}, err
		}
		if submission.IsDraft() {
			span.SetStatus(codes.Error, "submission_draft")
			return dto.SubmissionResponse{}, ErrSubmissionNotSubmitted
		}

		var (
			itemScores  map[int]float64
			manualScore float64
		)
		itemScores, manualScore, source, err = s.manualScore(submission, payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid_score")
			return dto.SubmissionResponse{}, err
		}

		if isIdempotentGrade(submission, manualScore, feedback, actor.ID) {
			span.SetAttributes(attribute.Bool("grading.idempotent", true))
			return dto.NewSubmissionResponse(submission), nil
		}

		peerScores, err := s.peerScores(ctx, submission.ID)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}

		submittedAt := submission.CreatedAt
		if submission.SubmittedAt != nil {
			submittedAt = *submission.SubmittedAt
		}

		score, err = composeSubmission(submission.Assignment, submission.AutoScore, &manualScore, submittedAt, peerScores)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compose_failed")
			return dto.SubmissionResponse{}, err
		}

		gradedAt := s.now()
		gradedBy := actor.ID
		submission.Status = models.SubmissionStatusGraded
		submission.ManualItemScores = datatypes.NewJSONType(itemScores)
		submission.ManualScore = &manualScore
		submission.Feedback = feedback
		submission.GradedAt = &gradedAt
		submission.GradedBy = &gradedBy
		submission.ApplyScore(score)

		history = models.SubmissionGradeHistory{
			SubmissionID: submission.ID,
			Score:        score.FinalScore,
			Percentage:   score.Percentage,
			Feedback:     feedback,
			GradedBy:     actor.ID,
			GradedAt:     gradedAt,
		}
		err = s.submissions.SaveGrade(ctx, &submission, &history)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission_update_failed")
			return dto.SubmissionResponse{}, err
		}
		if attempt == submissionWriteAttempts {
			span.SetStatus(codes.Error, "submission_conflict")
			return dto.SubmissionResponse{}, ErrSubmissionConflict
		}
		s.logger.Debug().Uint("submission_id", submissionID).Int("attempt", attempt).Msg("grade write conflict, reloading")
	}
	submission.History = append([]models.SubmissionGradeHistory{history}, submission.History...)

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "submission.graded",
		EntityType: "submission",
		EntityID:   &submission.ID,
		Metadata: map[string]interface{}{
			"student_id":    submission.StudentID,
			"assignment_id": submission.AssignmentID,
			"score_source":  source,
			"final_score":   score.FinalScore,
			"percentage":    score.Percentage,
		},
	})

	notifyAsync(s.async, s.notifier, s.logger, ctx, submission.StudentID, models.NotificationTypeSubmissionGraded, submissionMessage(submission))
	publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectSubmissionGraded, newSubmissionEvent(submission))

	span.SetAttributes(
		attribute.Float64("grading.final_score", score.FinalScore),
		attribute.String("grading.source", source),
	)
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("graded_by", actor.ID).
		Str("source", source).
		Int("percentage", score.Percentage).
		Msg("submission graded manually")

	return dto.NewSubmissionResponse(submission), nil
}

// manualScore resolves the raw score from the request. An override wins over
// rubric awards, which win over per-question item scores.
func (s *gradingService) manualScore(submission models.Submission, payload dto.GradeSubmissionRequest) (map[int]float64, float64, string, error) {
	assignment := submission.Assignment
	itemScores := map[int]float64{}
	for k, v := range submission.ManualItemScores.Data() {
		itemScores[k] = v
	}

	for index, value := range payload.ItemScores {
		if index < 0 || index >= len(submission.Evaluations) || !submission.Evaluations[index].NeedsManual {
			return nil, 0, "", fmt.Errorf("%w: question %d", ErrInvalidItemScore, index)
		}
		if value > submission.Evaluations[index].MaxPoints+1e-9 {
			return nil, 0, "", fmt.Errorf("%w: question %d allows %v points", ErrScoreExceedsMax, index, submission.Evaluations[index].MaxPoints)
		}
		itemScores[index] = value
	}

	if payload.OverrideScore != nil {
		if *payload.OverrideScore > assignment.TotalPoints+1e-9 {
			return nil, 0, "", ErrScoreExceedsMax
		}
		return itemScores, *payload.OverrideScore, "override", nil
	}

	rubric := assignment.Rubric.Data()
	if len(payload.RubricScores) > 0 && len(rubric.Criteria) > 0 {
		total, _ := grading.ScoreRubric(rubric, payload.RubricScores)
		return itemScores, math.Min(total, assignment.TotalPoints), "rubric", nil
	}

	return itemScores, grading.SumItemized(submission.Evaluations, itemScores), "items", nil
}

func (s *gradingService) peerScores(ctx context.Context, submissionID uint) ([]float64, error) {
	if s.reviews == nil {
		return nil, nil
	}
	reviews, err := s.reviews.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, 0, len(reviews))
	for _, review := range reviews {
		scores = append(scores, review.TotalScore)
	}
	return scores, nil
}

func isIdempotentGrade(submission models.Submission, manualScore float64, feedback string, actorID uint) bool {
	if !submission.IsGraded() || submission.ManualScore == nil || submission.GradedBy == nil {
		return false
	}
	return math.Abs(*submission.ManualScore-manualScore) < 1e-6 &&
		strings.TrimSpace(submission.Feedback) == feedback &&
		*submission.GradedBy == actorID
}
