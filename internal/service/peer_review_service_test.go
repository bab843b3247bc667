package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

func withPeerReview(a *models.Assignment) {
	a.PeerReviewEnabled = true
	a.PeerReviewsRequired = 2
	a.InstructorWeight = 80
	a.PeerWeight = 20
}

func newPeerReviewService(fx submissionFixture) *peerReviewService {
	svc := NewPeerReviewService(
		repository.NewSubmissionRepository(fx.db),
		repository.NewPeerReviewRepository(fx.db),
		testValidator(),
		fx.notifier,
		fx.recorder,
		testLogger(),
	).(*peerReviewService)
	svc.async = runInline
	return svc
}

// racingSubmissionRepo runs a hook right before the first score write so a
// concurrent writer can commit in between the service's read and write.
type racingSubmissionRepo struct {
	repository.SubmissionRepository
	beforeScore func()
	beforeGrade func()
}

func (r *racingSubmissionRepo) SaveScore(ctx context.Context, submission *models.Submission) error {
	if hook := r.beforeScore; hook != nil {
		r.beforeScore = nil
		hook()
	}
	return r.SubmissionRepository.SaveScore(ctx, submission)
}

func (r *racingSubmissionRepo) SaveGrade(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error {
	if hook := r.beforeGrade; hook != nil {
		r.beforeGrade = nil
		hook()
	}
	return r.SubmissionRepository.SaveGrade(ctx, submission, history)
}

type conflictingSubmissionRepo struct {
	repository.SubmissionRepository
}

func (conflictingSubmissionRepo) SaveScore(context.Context, *models.Submission) error {
	return repository.ErrConflict
}

func TestPeerReviewServiceBlendsAtRequiredCount(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), withPeerReview)
	svc := newPeerReviewService(fx)
	submission := submitEssay(t, fx)
	ctx := context.Background()

	reviewerA := seedStudent(t, fx.db, "Ayu")
	reviewerB := seedStudent(t, fx.db, "Dewi")

	first, err := svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 90, Comments: "<i>Nice</i>"}, ActivityActor{ID: reviewerA.ID, Role: "student"})
	require.NoError(t, err)
	require.Equal(t, "Nice", first.Review.Comments)
	require.False(t, first.Submission.PeerBlended)
	require.Equal(t, 50, first.Submission.Percentage)
	require.Equal(t, 90.0, *first.Submission.PeerReviewScore)

	second, err := svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 70}, ActivityActor{ID: reviewerB.ID, Role: "student"})
	require.NoError(t, err)
	require.True(t, second.Submission.PeerBlended)
	require.Equal(t, 80.0, *second.Submission.PeerReviewScore)
	require.Equal(t, 56, second.Submission.Percentage)

	sent := fx.notifier.all()
	require.Len(t, sent, 3)
	require.Equal(t, models.NotificationTypePeerReview, sent[1].Kind)
	require.Contains(t, sent[1].Message, "received a peer review")
	require.Contains(t, sent[2].Message, "scored 56%")
	require.Contains(t, sent[2].Message, "includes peer review")
	require.Equal(t, events.SubjectSubmissionReviewed, fx.recorder.Subjects()[2])

	reviews, err := svc.List(ctx, submission.ID, fx.learner())
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	_, err = svc.List(ctx, submission.ID, ActivityActor{ID: reviewerA.ID, Role: "student"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPeerReviewServiceRejectsSelfAndDuplicateReviews(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), withPeerReview)
	svc := newPeerReviewService(fx)
	submission := submitEssay(t, fx)
	ctx := context.Background()

	_, err := svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 80}, fx.learner())
	require.ErrorIs(t, err, ErrSelfReview)

	reviewer := ActivityActor{ID: seedStudent(t, fx.db, "Ayu").ID, Role: "student"}
	_, err = svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 80}, reviewer)
	require.NoError(t, err)

	_, err = svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 60}, reviewer)
	require.ErrorIs(t, err, ErrDuplicateReview)

	_, err = svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 120}, reviewer)
	require.Error(t, err)
}

func TestPeerReviewServiceRequiresEnabledAssignment(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)
	svc := newPeerReviewService(fx)
	submission := submitEssay(t, fx)

	_, err := svc.Review(context.Background(), submission.ID, dto.PeerReviewRequest{TotalScore: 80}, ActivityActor{ID: 77, Role: "student"})
	require.ErrorIs(t, err, ErrPeerReviewDisabled)
}

func TestPeerReviewServiceKeepsConcurrentManualGrade(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), withPeerReview)
	grader := newGradingService(fx, nil)
	submission := submitEssay(t, fx)
	ctx := context.Background()

	racing := &racingSubmissionRepo{SubmissionRepository: repository.NewSubmissionRepository(fx.db)}
	racing.beforeScore = func() {
		_, err := grader.Grade(ctx, submission.ID, dto.GradeSubmissionRequest{OverrideScore: floatPtr(18)}, ActivityActor{ID: 50, Role: "teacher"})
		require.NoError(t, err)
	}
	svc := newPeerReviewService(fx)
	svc.submissions = racing

	reviewer := ActivityActor{ID: seedStudent(t, fx.db, "Ayu").ID, Role: "student"}
	result, err := svc.Review(ctx, submission.ID, dto.PeerReviewRequest{TotalScore: 40}, reviewer)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, result.Submission.Status)
	require.Equal(t, 90, result.Submission.Percentage)

	var stored models.Submission
	require.NoError(t, fx.db.First(&stored, submission.ID).Error)
	require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	require.Equal(t, 18.0, *stored.ManualScore)
	require.Equal(t, 90, stored.Percentage)
	require.True(t, stored.Passed)
	require.Equal(t, 40.0, *stored.PeerReviewScore)
	require.Equal(t, 2, stored.Version)
}

func TestPeerReviewServiceGivesUpAfterRepeatedConflicts(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), withPeerReview)
	submission := submitEssay(t, fx)
	svc := newPeerReviewService(fx)
	svc.submissions = conflictingSubmissionRepo{SubmissionRepository: repository.NewSubmissionRepository(fx.db)}

	reviewer := ActivityActor{ID: seedStudent(t, fx.db, "Ayu").ID, Role: "student"}
	_, err := svc.Review(context.Background(), submission.ID, dto.PeerReviewRequest{TotalScore: 80}, reviewer)
	require.ErrorIs(t, err, ErrSubmissionConflict)
}
