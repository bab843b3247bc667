package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

func TestStudentDashboardAggregatesAndCaches(t *testing.T) {
	fx := newSubmissionFixture(t, essayDue.Add(-time.Hour), nil)
	ctx := context.Background()
	submitEssay(t, fx)

	second := seedAssignment(t, fx.db, nil)
	_, err := fx.svc.SaveDraft(ctx, dto.SubmissionAnswersRequest{AssignmentID: second.ID, Answers: fx.answers()}, fx.learner())
	require.NoError(t, err)

	quiz := NewQuizService(repository.NewModuleRepository(fx.db), testValidator(), nil, nil, nil, testLogger())
	module, err := quiz.CreateModule(ctx, dto.ModuleCreateRequest{Title: "Past tense", Level: "beginner", Questions: []byte(quizQuestions)}, ActivityActor{ID: 1, Role: "teacher"})
	require.NoError(t, err)
	_, err = quiz.Attempt(ctx, module.ID, dto.QuizAttemptRequest{Answers: []dto.AnswerPayload{rawAnswer(0, `"A"`), rawAnswer(1, `"went"`)}}, fx.learner())
	require.NoError(t, err)

	streaks := repository.NewStreakRepository(fx.db)
	require.NoError(t, fx.db.Model(&fx.student).Update("level", "beginner").Error)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewStudentDashboardService(
		repository.NewStudentRepository(fx.db),
		repository.NewSubmissionRepository(fx.db),
		repository.NewModuleRepository(fx.db),
		streaks,
		client,
		time.Minute,
		time.UTC,
		testLogger(),
	)

	dashboard, err := svc.GetDashboard(ctx, fx.student.ID)
	require.NoError(t, err)
	require.False(t, dashboard.CacheHit)
	require.Equal(t, "beginner", dashboard.Level)
	require.Equal(t, 1, dashboard.Summary.Submitted)
	require.Equal(t, 1, dashboard.Summary.Passed)
	require.Equal(t, 50.0, dashboard.Summary.AveragePercentage)
	require.Equal(t, 1, dashboard.Summary.ModulesCompleted)
	require.Len(t, dashboard.RecentSubmissions, 1)
	require.Equal(t, "Narrative essay", dashboard.RecentSubmissions[0].AssignmentName)
	require.Len(t, dashboard.Modules, 1)
	require.Equal(t, 0, dashboard.Streak.CurrentStreak)
	require.True(t, mr.Exists(dashboardCacheKey(fx.student.ID)))

	cached, err := svc.GetDashboard(ctx, fx.student.ID)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, dashboard.Summary, cached.Summary)

	svc.Invalidate(ctx, fx.student.ID)
	fresh, err := svc.GetDashboard(ctx, fx.student.ID)
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)

	_, err = svc.GetDashboard(ctx, 404)
	require.ErrorIs(t, err, ErrStudentNotFound)
}
