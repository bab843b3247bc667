package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const quizQuestions = `[
  {"type": "multiple-choice", "points": 5, "options": ["A", "B"], "correct_answer": "A"},
  {"type": "fill-blank", "points": 5, "acceptable_answers": ["went", "had gone"]}
]`

func TestQuizServiceTracksBestScoreAndCompletion(t *testing.T) {
	db := newServiceDB(t)
	student := seedStudent(t, db, "Rina")
	tracker := &fakeTracker{}
	recorder := &events.Recorder{}
	svc := NewQuizService(repository.NewModuleRepository(db), testValidator(), tracker, recorder, nil, testLogger()).(*quizService)
	svc.async = runInline
	ctx := context.Background()

	module, err := svc.CreateModule(ctx, dto.ModuleCreateRequest{
		Title:       "Past tense",
		Level:       "beginner",
		Questions:   []byte(quizQuestions),
		MaxAttempts: 3,
	}, ActivityActor{ID: 1, Role: "teacher"})
	require.NoError(t, err)
	require.Equal(t, 70.0, module.PassingScore)
	require.Len(t, module.Questions, 2)

	learner := ActivityActor{ID: student.ID, Role: "student"}

	first, err := svc.Attempt(ctx, module.ID, dto.QuizAttemptRequest{Answers: []dto.AnswerPayload{
		rawAnswer(0, `"A"`),
		rawAnswer(1, `"goed"`),
	}}, learner)
	require.NoError(t, err)
	require.Equal(t, 1, first.AttemptNumber)
	require.Equal(t, 50, first.Percentage)
	require.False(t, first.Passed)
	require.False(t, first.Progress.Completed)

	second, err := svc.Attempt(ctx, module.ID, dto.QuizAttemptRequest{Answers: []dto.AnswerPayload{
		rawAnswer(0, `"A"`),
		rawAnswer(1, `"Had Gone"`),
	}}, learner)
	require.NoError(t, err)
	require.Equal(t, 100, second.Percentage)
	require.True(t, second.Progress.Completed)
	require.NotNil(t, second.Progress.CompletedAt)

	third, err := svc.Attempt(ctx, module.ID, dto.QuizAttemptRequest{}, learner)
	require.NoError(t, err)
	require.Equal(t, 0, third.Percentage)
	require.Equal(t, 100, third.Progress.BestQuizScore)
	require.True(t, third.Progress.Completed)
	require.Equal(t, 3, third.Progress.Attempts)

	_, err = svc.Attempt(ctx, module.ID, dto.QuizAttemptRequest{}, learner)
	require.ErrorIs(t, err, ErrAttemptsExhausted)

	progress, err := svc.Progress(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	require.Equal(t, 3, progress[0].Attempts)

	require.Len(t, tracker.students, 3)
	require.Equal(t, []string{events.SubjectQuizCompleted, events.SubjectQuizCompleted, events.SubjectQuizCompleted}, recorder.Subjects())
}

func TestQuizServiceModuleLookup(t *testing.T) {
	db := newServiceDB(t)
	svc := NewQuizService(repository.NewModuleRepository(db), testValidator(), nil, nil, nil, testLogger())
	ctx := context.Background()
	teacher := ActivityActor{ID: 1, Role: "teacher"}

	for _, level := range []string{"beginner", "advanced"} {
		_, err := svc.CreateModule(ctx, dto.ModuleCreateRequest{Title: "Module " + level, Level: level, Questions: []byte(quizQuestions)}, teacher)
		require.NoError(t, err)
	}

	modules, err := svc.ListModules(ctx, " Advanced ")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.Equal(t, "Module advanced", modules[0].Title)

	_, err = svc.ListModules(ctx, "expert")
	require.ErrorIs(t, err, grading.ErrConfiguration)

	_, err = svc.GetModule(ctx, 404)
	require.ErrorIs(t, err, ErrModuleNotFound)

	_, err = svc.Attempt(ctx, 404, dto.QuizAttemptRequest{}, ActivityActor{ID: 3, Role: "student"})
	require.ErrorIs(t, err, ErrModuleNotFound)
}
