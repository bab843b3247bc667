package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

var essayDue = time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

func seedAssignment(t *testing.T, db *gorm.DB, mutate func(*models.Assignment)) models.Assignment {
	t.Helper()
	questions := mixedQuestions()
	assignment := models.Assignment{
		Title:               "Narrative essay",
		DueDate:             essayDue,
		Questions:           datatypes.NewJSONSlice(questions),
		TotalPoints:         20,
		PassingScore:        40,
		AllowLateSubmission: true,
		LatePenaltyPerDay:   10,
		MaxLateDays:         3,
		InstructorWeight:    100,
	}
	if mutate != nil {
		mutate(&assignment)
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

type submissionFixture struct {
	db         *gorm.DB
	svc        *submissionService
	notifier   *fakeNotifier
	tracker    *fakeTracker
	recorder   *events.Recorder
	student    models.Student
	assignment models.Assignment
}

func newSubmissionFixture(t *testing.T, now time.Time, mutate func(*models.Assignment)) submissionFixture {
	t.Helper()
	db := newServiceDB(t)
	fx := submissionFixture{
		db:       db,
		notifier: &fakeNotifier{},
		tracker:  &fakeTracker{},
		recorder: &events.Recorder{},
		student:  seedStudent(t, db, "Rina"),
	}
	fx.assignment = seedAssignment(t, db, mutate)

	svc := NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewAssignmentRepository(db),
		testValidator(),
		fx.tracker,
		fx.notifier,
		fx.recorder,
		nil,
		testLogger(),
	).(*submissionService)
	svc.now = fixedClock(now)
	svc.async = runInline
	fx.svc = svc
	return fx
}

func (fx submissionFixture) learner() ActivityActor {
	return ActivityActor{ID: fx.student.ID, Role: "student"}
}

func (fx submissionFixture) answers() []dto.AnswerPayload {
	return []dto.AnswerPayload{
		rawAnswer(0, `"A"`),
		rawAnswer(1, `" Went "`),
		rawAnswer(2, `"Last summer I went to Bali with my family."`),
	}
}

func TestSubmissionServiceSubmitAppliesLatePenalty(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(20*time.Hour), nil)

	resp, err := fx.svc.Submit(context.Background(), dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		Answers:      fx.answers(),
	}, fx.learner())
	require.NoError(t, err)

	require.Equal(t, models.SubmissionStatusSubmitted, resp.Status)
	require.Equal(t, 10.0, resp.AutoScore)
	require.Equal(t, 1, resp.DaysLate)
	require.Equal(t, 10.0, resp.LatePenaltyPercent)
	require.InDelta(t, 9.0, resp.FinalScore, 1e-9)
	require.Equal(t, 45, resp.Percentage)
	require.True(t, resp.Passed)
	require.True(t, resp.NeedsManualGrading)
	require.Len(t, resp.Evaluations, 3)

	sent := fx.notifier.all()
	require.Len(t, sent, 1)
	require.Equal(t, fx.student.ID, sent[0].StudentID)
	require.Equal(t, models.NotificationTypeSubmissionGraded, sent[0].Kind)
	require.Equal(t, `Your submission for "Narrative essay" scored 45%. A late penalty of 10% was applied for 1 day(s) late.`, sent[0].Message)

	require.Equal(t, []uint{fx.student.ID}, fx.tracker.students)
	require.Equal(t, []string{events.SubjectSubmissionGraded}, fx.recorder.Subjects())
	event, ok := fx.recorder.Events()[0].Payload.(SubmissionEvent)
	require.True(t, ok)
	require.Equal(t, 45, event.Percentage)

	var assignment models.Assignment
	require.NoError(t, fx.db.First(&assignment, fx.assignment.ID).Error)
	require.Equal(t, 1, assignment.TotalSubmissions)
}

func TestSubmissionServiceMissingAnswersScoreZero(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)

	resp, err := fx.svc.Submit(context.Background(), dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		Answers:      []dto.AnswerPayload{rawAnswer(1, `"went"`), rawAnswer(7, `"ignored"`)},
	}, fx.learner())
	require.NoError(t, err)
	require.Equal(t, 5.0, resp.AutoScore)
	require.Equal(t, 0, resp.DaysLate)
	require.Equal(t, 25, resp.Percentage)
	require.False(t, resp.Passed)
	require.NotContains(t, fx.notifier.all()[0].Message, "late penalty")
}

func TestSubmissionServiceRejectsSecondSubmit(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)
	ctx := context.Background()
	req := dto.SubmissionAnswersRequest{AssignmentID: fx.assignment.ID, Answers: fx.answers()}

	_, err := fx.svc.Submit(ctx, req, fx.learner())
	require.NoError(t, err)

	_, err = fx.svc.Submit(ctx, req, fx.learner())
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = fx.svc.SaveDraft(ctx, req, fx.learner())
	require.ErrorIs(t, err, ErrAlreadySubmitted)
}

// blindLatestRepo hides existing rows, as a concurrent first submit would see.
type blindLatestRepo struct {
	repository.SubmissionRepository
}

func (blindLatestRepo) GetLatest(context.Context, uint, uint) (models.Submission, error) {
	return models.Submission{}, gorm.ErrRecordNotFound
}

func TestSubmissionServiceConcurrentFirstSubmitCountsOnce(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)
	fx.svc.submissions = blindLatestRepo{SubmissionRepository: repository.NewSubmissionRepository(fx.db)}
	ctx := context.Background()
	req := dto.SubmissionAnswersRequest{AssignmentID: fx.assignment.ID, Answers: fx.answers()}

	_, err := fx.svc.Submit(ctx, req, fx.learner())
	require.NoError(t, err)

	_, err = fx.svc.Submit(ctx, req, fx.learner())
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = fx.svc.SaveDraft(ctx, req, fx.learner())
	require.ErrorIs(t, err, ErrSubmissionConflict)

	var rows int64
	require.NoError(t, fx.db.Model(&models.Submission{}).Where("assignment_id = ?", fx.assignment.ID).Count(&rows).Error)
	require.Equal(t, int64(1), rows)

	var stored models.Assignment
	require.NoError(t, fx.db.First(&stored, fx.assignment.ID).Error)
	require.Equal(t, 1, stored.TotalSubmissions)
}

func TestSubmissionServiceRejectsClosedAssignment(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.AddDate(0, 0, 4), nil)

	_, err := fx.svc.Submit(context.Background(), dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		Answers:      fx.answers(),
	}, fx.learner())
	require.ErrorIs(t, err, ErrAssignmentClosed)

	strict := newSubmissionFixture(t, essayDue.Add(time.Minute), func(a *models.Assignment) {
		a.AllowLateSubmission = false
	})
	_, err = strict.svc.Submit(context.Background(), dto.SubmissionAnswersRequest{
		AssignmentID: strict.assignment.ID,
	}, strict.learner())
	require.ErrorIs(t, err, ErrAssignmentClosed)
}

func TestSubmissionServiceDraftThenSubmit(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-48*time.Hour), nil)
	ctx := context.Background()

	draft, err := fx.svc.SaveDraft(ctx, dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		Answers:      []dto.AnswerPayload{rawAnswer(0, `"B"`)},
	}, fx.learner())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDraft, draft.Status)

	updated, err := fx.svc.SaveDraft(ctx, dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		Answers:      []dto.AnswerPayload{rawAnswer(0, `{"selected_id": "A"}`)},
	}, fx.learner())
	require.NoError(t, err)
	require.Equal(t, draft.ID, updated.ID)
	require.Empty(t, fx.notifier.all())

	submitted, err := fx.svc.Submit(ctx, dto.SubmissionAnswersRequest{AssignmentID: fx.assignment.ID}, fx.learner())
	require.NoError(t, err)
	require.Equal(t, draft.ID, submitted.ID)
	require.Equal(t, 5.0, submitted.AutoScore)
	require.Equal(t, 25, submitted.Percentage)
}

func TestSubmissionServiceAccessRules(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)
	ctx := context.Background()
	other := seedStudent(t, fx.db, "Budi")

	staff := ActivityActor{ID: 99, Role: "teacher"}
	resp, err := fx.svc.Submit(ctx, dto.SubmissionAnswersRequest{
		AssignmentID: fx.assignment.ID,
		StudentID:    other.ID,
		Answers:      fx.answers(),
	}, staff)
	require.NoError(t, err)
	require.Equal(t, other.ID, resp.StudentID)

	_, err = fx.svc.Get(ctx, resp.ID, fx.learner())
	require.ErrorIs(t, err, ErrForbidden)

	own, err := fx.svc.Get(ctx, resp.ID, ActivityActor{ID: other.ID, Role: "student"})
	require.NoError(t, err)
	require.Equal(t, "Budi", own.Student.Name)

	list, err := fx.svc.List(ctx, dto.SubmissionFilter{}, fx.learner())
	require.NoError(t, err)
	require.Empty(t, list.Items)

	list, err = fx.svc.List(ctx, dto.SubmissionFilter{}, staff)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	_, err = fx.svc.Get(ctx, 404, staff)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = fx.svc.Submit(ctx, dto.SubmissionAnswersRequest{AssignmentID: 404}, fx.learner())
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = fx.svc.Submit(ctx, dto.SubmissionAnswersRequest{AssignmentID: fx.assignment.ID}, ActivityActor{Role: "student"})
	require.ErrorIs(t, err, ErrStudentRequired)
}
