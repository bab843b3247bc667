package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/events"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
)

const teacherID = 900

type testApp struct {
	app      *fiber.App
	db       *gorm.DB
	students []models.Student
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

// newTestApp wires real services over an in-memory sqlite database. The
// X-User-ID and X-User-Role headers stand in for JWT claims.
func newTestApp(t *testing.T) testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	students := []models.Student{
		{Name: "Rina", Email: "rina@example.com"},
		{Name: "Bayu", Email: "bayu@example.com"},
		{Name: "Sari", Email: "sari@example.com"},
	}
	require.NoError(t, db.Create(&students).Error)

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	publisher := events.Nop()

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewPeerReviewRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	streakRepo := repository.NewStreakRepository(db)

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	streaks := service.NewStreakService(streakRepo, studentRepo, nil, validate, notifications, publisher, activity, service.StreakConfig{Location: time.UTC}, logger)

	assignments := service.NewAssignmentService(assignmentRepo, validate, activity, logger)
	submissions := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, streaks, notifications, publisher, activity, logger)
	grades := service.NewGradingService(submissionRepo, reviewRepo, validate, activity, notifications, publisher, logger)
	reviews := service.NewPeerReviewService(submissionRepo, reviewRepo, validate, notifications, publisher, logger)
	quizzes := service.NewQuizService(moduleRepo, validate, streaks, publisher, activity, logger)
	placements := service.NewPlacementService(placementRepo, studentRepo, validate, notifications, publisher, activity, logger)
	dashboard := service.NewStudentDashboardService(studentRepo, submissionRepo, moduleRepo, streakRepo, nil, time.Minute, nil, logger)
	analytics := service.NewAnalyticsService(repository.NewAnalyticsRepository(db), nil, time.Minute, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		AssignmentHandler:       handler.NewAssignmentHandler(assignments, logger),
		SubmissionHandler:       handler.NewSubmissionHandler(submissions, nil, logger),
		GradingHandler:          handler.NewGradingHandler(grades, reviews, logger),
		QuizHandler:             handler.NewQuizHandler(quizzes, logger),
		PlacementHandler:        handler.NewPlacementHandler(placements, logger),
		StreakHandler:           handler.NewStreakHandler(streaks, logger),
		NotificationHandler:     handler.NewNotificationHandler(notifications, logger, time.Second),
		StudentDashboardHandler: handler.NewStudentDashboardHandler(dashboard, logger),
		ActivityHandler:         handler.NewActivityHandler(activity, logger),
		AnalyticsHandler:        handler.NewAnalyticsHandler(analytics, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-User-ID"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			if role := c.Get("X-User-Role"); role != "" {
				c.Locals("user_role", role)
			}
			return c.Next()
		},
	})

	return testApp{app: app, db: db, students: students}
}

func (ta testApp) student(i int) uint {
	return ta.students[i].ID
}

func (ta testApp) do(t *testing.T, method, path string, body interface{}, userID uint, role string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			raw, err := json.Marshal(v)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(userID), 10))
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	var payload envelope
	decodeResponse(t, resp, &payload)
	return resp, payload
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}
