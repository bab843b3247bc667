package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
)

const quizQuestions = `[
  {"type": "multiple-choice", "points": 5, "options": ["A", "B"], "correct_answer": "A"},
  {"type": "fill-blank", "points": 5, "acceptable_answers": ["went", "had gone"]}
]`

func quizAnswers(first, second string) map[string]interface{} {
	return map[string]interface{}{
		"answers": []map[string]interface{}{
			{"question_index": 0, "value": json.RawMessage(first)},
			{"question_index": 1, "value": json.RawMessage(second)},
		},
	}
}

func TestQuizHandlerModuleLifecycle(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodPost, "/api/v2/modules", map[string]interface{}{
		"title":        "Past tense",
		"level":        "beginner",
		"questions":    json.RawMessage(quizQuestions),
		"max_attempts": 2,
	}, teacherID, "teacher")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var module dto.ModuleResponse
	decodeData(t, body, &module)
	require.Len(t, module.Questions, 2)

	resp, body = ta.do(t, http.MethodGet, "/api/v2/modules?level=Beginner", nil, ta.student(0), "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var modules []dto.ModuleResponse
	decodeData(t, body, &modules)
	require.Len(t, modules, 1)

	resp, _ = ta.do(t, http.MethodGet, "/api/v2/modules?level=expert", nil, ta.student(0), "student")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	attemptPath := fmt.Sprintf("/api/v2/modules/%d/attempts", module.ID)
	resp, body = ta.do(t, http.MethodPost, attemptPath, quizAnswers(`"A"`, `"goed"`), ta.student(0), "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var attempt dto.QuizAttemptResponse
	decodeData(t, body, &attempt)
	require.Equal(t, 50, attempt.Percentage)
	require.Equal(t, 1, attempt.AttemptNumber)

	resp, body = ta.do(t, http.MethodPost, attemptPath, quizAnswers(`"A"`, `" Went "`), ta.student(0), "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	decodeData(t, body, &attempt)
	require.Equal(t, 100, attempt.Percentage)
	require.True(t, attempt.Progress.Completed)

	resp, _ = ta.do(t, http.MethodPost, attemptPath, quizAnswers(`"B"`, `"no"`), ta.student(0), "student")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, "/api/v2/modules/progress", nil, ta.student(0), "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var progress []dto.ModuleProgressResponse
	decodeData(t, body, &progress)
	require.Len(t, progress, 1)
	require.Equal(t, 100, progress[0].BestQuizScore)

	resp, _ = ta.do(t, http.MethodGet, "/api/v2/modules/4242", nil, ta.student(0), "student")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
