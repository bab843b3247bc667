package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var (
	// ErrSelfReview indicates a learner tried to review their own submission.
	ErrSelfReview = errors.New("cannot review your own submission")
	// ErrDuplicateReview indicates the reviewer already reviewed this submission.
	ErrDuplicateReview = errors.New("submission already reviewed by this reviewer")
	// ErrPeerReviewDisabled indicates the assignment does not use peer review.
	ErrPeerReviewDisabled = errors.New("peer review is not enabled for this assignment")
)

// PeerReviewService records classmate reviews and blends them into scores.
type PeerReviewService interface {
	Review(ctx context.Context, submissionID uint, payload dto.PeerReviewRequest, actor ActivityActor) (dto.PeerReviewResultResponse, error)
	List(ctx context.Context, submissionID uint, actor ActivityActor) ([]dto.PeerReviewResponse, error)
}

type peerReviewService struct {
	submissions repository.SubmissionRepository
	reviews     repository.PeerReviewRepository
	validator   *validator.Validate
	notifier    Notifier
	publisher   events.Publisher
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	async       func(func())
}

// NewPeerReviewService constructs the peer review service.
func NewPeerReviewService(submissions repository.SubmissionRepository, reviews repository.PeerReviewRepository, validate *validator.Validate, notifier Notifier, publisher events.Publisher, logger zerolog.Logger) PeerReviewService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &peerReviewService{
		submissions: submissions,
		reviews:     reviews,
		validator:   validate,
		notifier:    notifier,
		publisher:   publisher,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "peer_review_service").Logger(),
		async:       runAsync,
	}
}

func (s *peerReviewService) Review(ctx context.Context, submissionID uint, payload dto.PeerReviewRequest, actor ActivityActor) (dto.PeerReviewResultResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/peer_review")
	ctx, span := tracer.Start(ctx, "peer_review.create")
	span.SetAttributes(
		attribute.Int64("peer_review.submission_id", int64(submissionID)),
		attribute.Int64("peer_review.reviewer_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.PeerReviewResultResponse{}, err
	}
	if actor.ID == 0 {
		return dto.PeerReviewResultResponse{}, ErrStudentRequired
	}

	submission, err := s.load(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return dto.PeerReviewResultResponse{}, err
	}
	if submission.IsDraft() {
		return dto.PeerReviewResultResponse{}, ErrSubmissionNotSubmitted
	}
	if !submission.Assignment.PeerReviewEnabled {
		return dto.PeerReviewResultResponse{}, ErrPeerReviewDisabled
	}
	if submission.StudentID == actor.ID {
		span.SetStatus(codes.Error, "self_review")
		return dto.PeerReviewResultResponse{}, ErrSelfReview
	}

	exists, err := s.reviews.Exists(ctx, submission.ID, actor.ID)
	if err != nil {
		return dto.PeerReviewResultResponse{}, err
	}
	if exists {
		span.SetStatus(codes.Error, "duplicate_review")
		return dto.PeerReviewResultResponse{}, ErrDuplicateReview
	}

	review := models.PeerReview{
		SubmissionID: submission.ID,
		ReviewerID:   actor.ID,
		TotalScore:   payload.TotalScore,
		Comments:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Comments)),
	}
	if err := s.reviews.Create(ctx, &review); err != nil {
		// The unique index catches a concurrent duplicate.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.PeerReviewResultResponse{}, ErrDuplicateReview
		}
		if again, checkErr := s.reviews.Exists(ctx, submission.ID, actor.ID); checkErr == nil && again {
			return dto.PeerReviewResultResponse{}, ErrDuplicateReview
		}
		span.RecordError(err)
		return dto.PeerReviewResultResponse{}, err
	}

	var (
		score      grading.SubmissionScore
		scores     []float64
		wasBlended bool
	)
	// A grade or another review committed since the load bumps the version,
	// so the score is recomposed from the fresh row.
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if submission, err = s.load(ctx, submissionID); err != nil {
				span.RecordError(err)
				return dto.PeerReviewResultResponse{}, err
			}
		}

		reviews, err := s.reviews.ListBySubmission(ctx, submission.ID)
		if err != nil {
			return dto.PeerReviewResultResponse{}, err
		}
		scores = make([]float64, 0, len(reviews))
		for _, r := range reviews {
			scores = append(scores, r.TotalScore)
		}

		submittedAt := submission.CreatedAt
		if submission.SubmittedAt != nil {
			submittedAt = *submission.SubmittedAt
		}

		wasBlended = submission.PeerBlended
		score, err = composeSubmission(submission.Assignment, submission.AutoScore, submission.ManualScore, submittedAt, scores)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compose_failed")
			return dto.PeerReviewResultResponse{}, err
		}
		submission.ApplyScore(score)

		err = s.submissions.SaveScore(ctx, &submission)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "score_update_failed")
			return dto.PeerReviewResultResponse{}, err
		}
		if attempt == submissionWriteAttempts {
			span.SetStatus(codes.Error, "score_conflict")
			return dto.PeerReviewResultResponse{}, ErrSubmissionConflict
		}
		s.logger.Debug().Uint("submission_id", submission.ID).Int("attempt", attempt).Msg("peer score write conflict, reloading")
	}

	span.SetAttributes(
		attribute.Int("peer_review.count", len(scores)),
		attribute.Bool("peer_review.blended", score.PeerBlended),
	)
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("reviewer_id", actor.ID).
		Int("reviews", len(scores)).
		Bool("blended", score.PeerBlended).
		Msg("peer review recorded")

	message := fmt.Sprintf("You received a peer review for %q.", submission.Assignment.Title)
	if score.PeerBlended && !wasBlended {
		observability.GradingOutcomes().WithLabelValues("peer_blend", observability.PassLabel(score.Passed)).Inc()
		message = submissionMessage(submission)
	}
	notifyAsync(s.async, s.notifier, s.logger, ctx, submission.StudentID, models.NotificationTypePeerReview, message)
	publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectSubmissionReviewed, newSubmissionEvent(submission))

	return dto.PeerReviewResultResponse{
		Review:     dto.NewPeerReviewResponse(review),
		Submission: dto.NewSubmissionResponse(submission),
	}, nil
}

func (s *peerReviewService) List(ctx context.Context, submissionID uint, actor ActivityActor) ([]dto.PeerReviewResponse, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && submission.StudentID != actor.ID {
		return nil, ErrForbidden
	}

	reviews, err := s.reviews.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.PeerReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		responses = append(responses, dto.NewPeerReviewResponse(review))
	}
	return responses, nil
}

func (s *peerReviewService) load(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}
