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

const placementQuestions = `[
  {"type": "multiple-choice", "points": 10, "correct_answer": "A", "category": "grammar", "difficulty": "easy"},
  {"type": "multiple-choice", "points": 10, "correct_answer": "B", "category": "grammar", "difficulty": "medium"},
  {"type": "fill-blank", "points": 10, "acceptable_answers": ["ran"], "category": "vocabulary", "difficulty": "medium"},
  {"type": "true-false", "points": 10, "correct_answer": "true", "category": "listening", "difficulty": "hard"}
]`

func TestPlacementHandlerAssignsLevel(t *testing.T) {
	ta := newTestApp(t)
	learner := ta.student(0)

	resp, body := ta.do(t, http.MethodPost, "/api/v2/placement/tests", map[string]interface{}{
		"title":     "English placement",
		"questions": json.RawMessage(placementQuestions),
	}, teacherID, "admin")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var test dto.PlacementTestResponse
	decodeData(t, body, &test)

	resp, _ = ta.do(t, http.MethodGet, "/api/v2/placement/results/latest", nil, learner, "student")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, "/api/v2/placement/enrollment?level=beginner", nil, learner, "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var check dto.EnrollmentCheckResponse
	decodeData(t, body, &check)
	require.False(t, check.Allowed)

	resp, body = ta.do(t, http.MethodPost, fmt.Sprintf("/api/v2/placement/tests/%d/submit", test.ID), map[string]interface{}{
		"answers": []map[string]interface{}{
			{"question_index": 0, "value": json.RawMessage(`"A"`)},
			{"question_index": 1, "value": json.RawMessage(`{"selected_id": "B"}`)},
			{"question_index": 2, "value": json.RawMessage(`"Ran"`)},
			{"question_index": 3, "value": json.RawMessage(`false`)},
		},
	}, learner, "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var result dto.PlacementResultResponse
	decodeData(t, body, &result)
	require.Equal(t, 75.0, result.PercentageScore)
	require.Equal(t, "intermediate", result.AssignedLevel)

	resp, body = ta.do(t, http.MethodGet, "/api/v2/placement/enrollment?level=intermediate", nil, learner, "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &check)
	require.True(t, check.Allowed)

	resp, body = ta.do(t, http.MethodGet, fmt.Sprintf("/api/v2/placement/results/latest?student_id=%d", learner), nil, teacherID, "teacher")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var latest dto.PlacementResultResponse
	decodeData(t, body, &latest)
	require.Equal(t, result.ID, latest.ID)

	resp, _ = ta.do(t, http.MethodGet, "/api/v2/placement/tests/777", nil, learner, "student")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
