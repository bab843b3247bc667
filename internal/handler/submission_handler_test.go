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

func answersFor(assignmentID uint) map[string]interface{} {
	return map[string]interface{}{
		"assignment_id": assignmentID,
		"answers": []map[string]interface{}{
			{"question_index": 0, "value": json.RawMessage(`"A"`)},
			{"question_index": 1, "value": json.RawMessage(`"Once upon a time"`)},
		},
	}
}

func submit(t *testing.T, ta testApp, assignmentID, studentID uint) dto.SubmissionResponse {
	t.Helper()
	resp, body := ta.do(t, http.MethodPost, "/api/v2/submissions", answersFor(assignmentID), studentID, "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)

	var submission dto.SubmissionResponse
	decodeData(t, body, &submission)
	return submission
}

func TestSubmissionHandlerSubmitAndAccessRules(t *testing.T) {
	ta := newTestApp(t)
	assignment := createAssignment(t, ta, nil)

	submission := submit(t, ta, assignment.ID, ta.student(0))
	require.Equal(t, "submitted", submission.Status)
	require.Equal(t, 25, submission.Percentage)
	require.True(t, submission.NeedsManualGrading)
	require.Equal(t, 0, submission.DaysLate)

	resp, _ := ta.do(t, http.MethodPost, "/api/v2/submissions", answersFor(assignment.ID), ta.student(0), "student")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	path := fmt.Sprintf("/api/v2/submissions/%d", submission.ID)
	resp, _ = ta.do(t, http.MethodGet, path, nil, ta.student(1), "student")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, path, nil, teacherID, "teacher")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := ta.do(t, http.MethodGet, "/api/v2/submissions", nil, ta.student(1), "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var items []dto.SubmissionResponse
	decodeData(t, body, &items)
	require.Empty(t, items)

	resp, _ = ta.do(t, http.MethodGet, "/api/v2/submissions/9999", nil, teacherID, "teacher")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSubmissionHandlerDraftThenSubmit(t *testing.T) {
	ta := newTestApp(t)
	assignment := createAssignment(t, ta, nil)

	resp, body := ta.do(t, http.MethodPost, "/api/v2/submissions/draft", answersFor(assignment.ID), ta.student(0), "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var draft dto.SubmissionResponse
	decodeData(t, body, &draft)
	require.Equal(t, "draft", draft.Status)

	submitted := submit(t, ta, assignment.ID, ta.student(0))
	require.Equal(t, draft.ID, submitted.ID)
}

func TestSubmissionHandlerRejectsMalformedBody(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodPost, "/api/v2/submissions", "{not json", ta.student(0), "student")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/v2/submissions", map[string]interface{}{"answers": []interface{}{}}, ta.student(0), "student")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGradingHandlerGradesSubmission(t *testing.T) {
	ta := newTestApp(t)
	assignment := createAssignment(t, ta, nil)
	submission := submit(t, ta, assignment.ID, ta.student(0))
	path := fmt.Sprintf("/api/v2/submissions/%d/grade", submission.ID)

	resp, _ := ta.do(t, http.MethodPatch, path, map[string]interface{}{"override_score": 18}, ta.student(0), "student")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPatch, path, map[string]interface{}{"override_score": 25}, teacherID, "teacher")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := ta.do(t, http.MethodPatch, path, map[string]interface{}{
		"item_scores": map[string]float64{"1": 13},
		"feedback":    "<b>Good</b> pacing",
	}, teacherID, "teacher")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	var graded dto.SubmissionResponse
	decodeData(t, body, &graded)
	require.Equal(t, "graded", graded.Status)
	require.Equal(t, 18.0, graded.RawScore)
	require.Equal(t, 90, graded.Percentage)
	require.True(t, graded.Passed)
	require.Equal(t, "Good pacing", graded.Feedback)
	require.Len(t, graded.History, 1)
}

func TestGradingHandlerPeerReviews(t *testing.T) {
	ta := newTestApp(t)
	assignment := createAssignment(t, ta, map[string]interface{}{
		"peer_review": map[string]interface{}{"enabled": true, "reviews_required": 2, "instructor_weight": 80, "peer_weight": 20},
	})
	submission := submit(t, ta, assignment.ID, ta.student(0))
	path := fmt.Sprintf("/api/v2/submissions/%d/reviews", submission.ID)

	resp, _ := ta.do(t, http.MethodPost, path, map[string]interface{}{"total_score": 80}, ta.student(0), "student")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body := ta.do(t, http.MethodPost, path, map[string]interface{}{"total_score": 90, "comments": "clear"}, ta.student(1), "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var first dto.PeerReviewResultResponse
	decodeData(t, body, &first)
	require.False(t, first.Submission.PeerBlended)

	resp, _ = ta.do(t, http.MethodPost, path, map[string]interface{}{"total_score": 90}, ta.student(1), "student")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, path, map[string]interface{}{"total_score": 120}, ta.student(2), "student")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, path, map[string]interface{}{"total_score": 70}, ta.student(2), "student")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var second dto.PeerReviewResultResponse
	decodeData(t, body, &second)
	require.True(t, second.Submission.PeerBlended)
	require.Equal(t, 36, second.Submission.Percentage)

	resp, _ = ta.do(t, http.MethodGet, path, nil, ta.student(1), "student")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, path, nil, ta.student(0), "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var reviews []dto.PeerReviewResponse
	decodeData(t, body, &reviews)
	require.Len(t, reviews, 2)
}
