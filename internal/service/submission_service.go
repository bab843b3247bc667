package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAssignmentClosed indicates the assignment no longer accepts submissions.
	ErrAssignmentClosed = errors.New("assignment is closed for submissions")
	// ErrAlreadySubmitted indicates the learner already submitted this assignment.
	ErrAlreadySubmitted = errors.New("assignment already submitted")
	// ErrStudentRequired indicates no learner could be resolved for the request.
	ErrStudentRequired = errors.New("student id is required")
	// ErrForbidden indicates the actor may not access the resource.
	ErrForbidden = errors.New("access to resource is forbidden")
	// ErrSubmissionConflict indicates concurrent writers kept changing the
	// submission and the request gave up.
	ErrSubmissionConflict = errors.New("submission was modified concurrently, retry")
)

// submissionWriteAttempts bounds reload-and-recompose retries on score writes.
const submissionWriteAttempts = 3

// ActivityTracker records a learner's daily activity for streaks.
type ActivityTracker interface {
	RecordActivity(ctx context.Context, studentID uint) (dto.StreakActivityResponse, error)
}

// SubmissionService orchestrates draft, submit and review of assignment answers.
type SubmissionService interface {
	List(ctx context.Context, filter dto.SubmissionFilter, actor ActivityActor) (dto.SubmissionListResponse, error)
	Get(ctx context.Context, id uint, actor ActivityActor) (dto.SubmissionResponse, error)
	SaveDraft(ctx context.Context, payload dto.SubmissionAnswersRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, payload dto.SubmissionAnswersRequest, actor ActivityActor) (dto.SubmissionResponse, error)
}

// SubmissionEvent is published whenever a submission score changes.
type SubmissionEvent struct {
	SubmissionID       uint    `json:"submission_id"`
	AssignmentID       uint    `json:"assignment_id"`
	StudentID          uint    `json:"student_id"`
	Status             string  `json:"status"`
	FinalScore         float64 `json:"final_score"`
	Percentage         int     `json:"percentage"`
	Passed             bool    `json:"passed"`
	LatePenaltyPercent float64 `json:"late_penalty_percent"`
	PeerBlended        bool    `json:"peer_blended"`
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	tracker     ActivityTracker
	notifier    Notifier
	publisher   events.Publisher
	activity    ActivityRecorder
	logger      zerolog.Logger
	now         func() time.Time
	async       func(func())
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, validate *validator.Validate, tracker ActivityTracker, notifier Notifier, publisher events.Publisher, activity ActivityRecorder, logger zerolog.Logger) SubmissionService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		validator:   validate,
		tracker:     tracker,
		notifier:    notifier,
		publisher:   publisher,
		activity:    activity,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
		async:       runAsync,
	}
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor ActivityActor) (dto.SubmissionListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.SubmissionListResponse{}, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	repoFilter := repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
		Status:       filter.Status,
		Page:         page,
		PageSize:     pageSize,
	}
	if !actor.IsStaff() {
		own := actor.ID
		repoFilter.StudentID = &own
	}

	submissions, total, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.SubmissionListResponse{
		Items:      dto.NewSubmissionResponseSlice(submissions),
		Pagination: dto.NewPagination(page, pageSize, total),
	}, nil
}

func (s *submissionService) Get(ctx context.Context, id uint, actor ActivityActor) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if !actor.IsStaff() && submission.StudentID != actor.ID {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) SaveDraft(ctx context.Context, payload dto.SubmissionAnswersRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	studentID, err := resolveStudentID(actor, payload.StudentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.loadAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	if !assignment.IsOpen(now) {
		return dto.SubmissionResponse{}, ErrAssignmentClosed
	}

	existing, found, err := s.latest(ctx, assignment.ID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	answers := datatypes.NewJSONSlice(storedAnswers(payload.Answers))
	if found {
		if !existing.IsDraft() {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		existing.Answers = answers
		if err := s.submissions.UpdateDraft(ctx, &existing); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return dto.SubmissionResponse{}, ErrAlreadySubmitted
			}
			return dto.SubmissionResponse{}, err
		}
		existing.Assignment = assignment
		return dto.NewSubmissionResponse(existing), nil
	}

	draft := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		Status:       models.SubmissionStatusDraft,
		Answers:      answers,
		StartedAt:    now,
	}
	if err := s.submissions.CreateDraft(ctx, &draft); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return dto.SubmissionResponse{}, ErrSubmissionConflict
		}
		return dto.SubmissionResponse{}, err
	}

	s.logger.Debug().Uint("submission_id", draft.ID).Uint("student_id", studentID).Msg("draft saved")

	draft.Assignment = assignment
	return dto.NewSubmissionResponse(draft), nil
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionAnswersRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/submission")
	ctx, span := tracer.Start(ctx, "submission.submit")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	studentID, err := resolveStudentID(actor, payload.StudentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	span.SetAttributes(
		attribute.Int64("submission.assignment_id", int64(payload.AssignmentID)),
		attribute.Int64("submission.student_id", int64(studentID)),
	)

	assignment, err := s.loadAssignment(ctx, payload.AssignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	if !assignment.IsOpen(now) {
		span.SetStatus(codes.Error, "assignment_closed")
		return dto.SubmissionResponse{}, ErrAssignmentClosed
	}

	submission, found, err := s.latest(ctx, assignment.ID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if found && !submission.IsDraft() {
		span.SetStatus(codes.Error, "already_submitted")
		return dto.SubmissionResponse{}, ErrAlreadySubmitted
	}
	if !found {
		submission = models.Submission{
			AssignmentID: assignment.ID,
			StudentID:    studentID,
			StartedAt:    now,
		}
	}
	if len(payload.Answers) > 0 || !found {
		submission.Answers = datatypes.NewJSONSlice(storedAnswers(payload.Answers))
	}

	questions := []grading.Question(assignment.Questions)
	answers, err := decodeAnswers(questions, submission.Answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode_failed")
		return dto.SubmissionResponse{}, err
	}

	outcome, err := grading.Grade(questions, answers, assignment.PassingScore)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		return dto.SubmissionResponse{}, err
	}

	score, err := composeSubmission(assignment, outcome.EarnedPoints, nil, now, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose_failed")
		return dto.SubmissionResponse{}, err
	}

	submittedAt := now
	submission.Status = models.SubmissionStatusSubmitted
	submission.Evaluations = datatypes.NewJSONSlice(outcome.Results)
	submission.AutoScore = outcome.EarnedPoints
	submission.SubmittedAt = &submittedAt
	submission.ApplyScore(score)

	if err := s.submissions.Finalize(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.SubmissionResponse{}, err
	}

	observability.GradingOutcomes().WithLabelValues("assignment", observability.PassLabel(score.Passed)).Inc()
	span.SetAttributes(
		attribute.Int("submission.percentage", score.Percentage),
		attribute.Int("submission.days_late", score.DaysLate),
		attribute.Bool("submission.needs_manual", outcome.NeedsManual),
	)

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", assignment.ID).
		Uint("student_id", studentID).
		Int("percentage", score.Percentage).
		Float64("late_penalty_percent", score.LatePenaltyPercent).
		Msg("submission graded")

	submission.Assignment = assignment
	s.afterSubmit(ctx, submission)

	return dto.NewSubmissionResponse(submission), nil
}

// afterSubmit fires the side effects of a submit. None of them can fail it.
func (s *submissionService) afterSubmit(ctx context.Context, submission models.Submission) {
	notifyAsync(s.async, s.notifier, s.logger, ctx, submission.StudentID, models.NotificationTypeSubmissionGraded, submissionMessage(submission))

	if s.tracker != nil {
		detached := context.WithoutCancel(ctx)
		studentID := submission.StudentID
		s.async(func() {
			if _, err := s.tracker.RecordActivity(detached, studentID); err != nil {
				s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to record streak activity")
			}
		})
	}

	publishAsync(s.async, s.publisher, s.logger, ctx, events.SubjectSubmissionGraded, newSubmissionEvent(submission))
}

func (s *submissionService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) latest(ctx context.Context, assignmentID, studentID uint) (models.Submission, bool, error) {
	submission, err := s.submissions.GetLatest(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, false, nil
		}
		return models.Submission{}, false, err
	}
	return submission, true, nil
}

// composeSubmission scores a submission against its assignment's policies.
func composeSubmission(assignment models.Assignment, autoScore float64, manualScore *float64, submittedAt time.Time, peerScores []float64) (grading.SubmissionScore, error) {
	started := time.Now()
	defer func() {
		observability.ComposeDuration().Observe(time.Since(started).Seconds())
	}()

	return grading.Compose(grading.ComposeInput{
		RawAutoScore:        autoScore,
		ManualScore:         manualScore,
		SubmittedAt:         submittedAt,
		DueDate:             assignment.DueDate,
		Late:                assignment.LatePolicy(),
		TotalPoints:         assignment.TotalPoints,
		PassingScorePercent: assignment.PassingScore,
		PeerReview:          assignment.PeerReviewInput(peerScores),
	})
}

func submissionMessage(submission models.Submission) string {
	title := submission.Assignment.Title
	if title == "" {
		title = fmt.Sprintf("assignment #%d", submission.AssignmentID)
	}

	message := fmt.Sprintf("Your submission for %q scored %d%%.", title, submission.Percentage)
	if submission.LatePenaltyPercent > 0 {
		message += fmt.Sprintf(" A late penalty of %s%% was applied for %d day(s) late.",
			strconv.FormatFloat(submission.LatePenaltyPercent, 'f', -1, 64), submission.DaysLate)
	}
	if submission.PeerBlended {
		message += " Your score includes peer review."
	}
	return message
}

func newSubmissionEvent(submission models.Submission) SubmissionEvent {
	return SubmissionEvent{
		SubmissionID:       submission.ID,
		AssignmentID:       submission.AssignmentID,
		StudentID:          submission.StudentID,
		Status:             submission.Status,
		FinalScore:         submission.FinalScore,
		Percentage:         submission.Percentage,
		Passed:             submission.Passed,
		LatePenaltyPercent: submission.LatePenaltyPercent,
		PeerBlended:        submission.PeerBlended,
	}
}

// resolveStudentID lets staff act for a learner; learners always act for themselves.
func resolveStudentID(actor ActivityActor, requested uint) (uint, error) {
	if actor.IsStaff() && requested > 0 {
		return requested, nil
	}
	if actor.ID == 0 {
		return 0, ErrStudentRequired
	}
	return actor.ID, nil
}

func publishAsync(run func(func()), publisher events.Publisher, logger zerolog.Logger, ctx context.Context, subject string, payload interface{}) {
	if publisher == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	run(func() {
		if err := publisher.Publish(detached, subject, payload); err != nil {
			logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		}
	})
}
