package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func runInline(fn func()) {
	fn()
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func seedStudent(t *testing.T, db *gorm.DB, name string) models.Student {
	t.Helper()
	student := models.Student{Name: name, Email: uuid.NewString() + "@example.com"}
	require.NoError(t, db.Create(&student).Error)
	return student
}

func floatPtr(v float64) *float64 {
	return &v
}

func rawAnswer(index int, value string) dto.AnswerPayload {
	return dto.AnswerPayload{QuestionIndex: index, Value: []byte(value)}
}

// mixedQuestions is 10 auto-graded points plus a 10 point essay.
func mixedQuestions() []grading.Question {
	return []grading.Question{
		{Type: grading.QuestionMultipleChoice, Points: 5, Options: []string{"A", "B"}, CorrectAnswer: "A", Category: "grammar"},
		{Type: grading.QuestionFillBlank, Points: 5, AcceptableAnswers: []string{"went"}, Category: "vocabulary"},
		{Type: grading.QuestionLongAnswer, Points: 10, Category: "writing"},
	}
}

type notification struct {
	StudentID uint
	Kind      string
	Message   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, studentID uint, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{StudentID: studentID, Kind: kind, Message: message})
	return nil
}

func (f *fakeNotifier) all() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.sent...)
}

type fakeTracker struct {
	mu       sync.Mutex
	students []uint
}

func (f *fakeTracker) RecordActivity(ctx context.Context, studentID uint) (dto.StreakActivityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students = append(f.students, studentID)
	return dto.StreakActivityResponse{}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
