package handler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/streak"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidQuestionPayload, fiber.StatusBadRequest},
		{service.ErrScoreExceedsMax, fiber.StatusBadRequest},
		{service.ErrForbidden, fiber.StatusForbidden},
		{fmt.Errorf("load: %w", service.ErrSubmissionNotFound), fiber.StatusNotFound},
		{service.ErrNotificationNotFound, fiber.StatusNotFound},
		{service.ErrAlreadySubmitted, fiber.StatusConflict},
		{fmt.Errorf("%w: 3 of 3 used", service.ErrAttemptsExhausted), fiber.StatusConflict},
		{streak.ErrStateConflict, fiber.StatusConflict},
		{service.ErrSubmissionConflict, fiber.StatusConflict},
		{&grading.ConfigurationError{Field: "total_points", Reason: "must be positive"}, fiber.StatusUnprocessableEntity},
		{service.ErrPeerReviewDisabled, fiber.StatusUnprocessableEntity},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range tests {
		app := fiber.New()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error {
			return respondError(c, zerolog.Nop(), err)
		})

		resp, testErr := app.Test(httptest.NewRequest("GET", "/", nil), -1)
		require.NoError(t, testErr)
		require.Equal(t, tc.status, resp.StatusCode, "error %v", tc.err)
		resp.Body.Close()
	}
}

func TestParseWeekOf(t *testing.T) {
	zero, err := parseDateParam(" ")
	require.NoError(t, err)
	require.True(t, zero.IsZero())

	day, err := parseDateParam("2025-06-12")
	require.NoError(t, err)
	require.Equal(t, 12, day.Day())

	_, err = parseDateParam("2025-06-12T10:00:00+07:00")
	require.NoError(t, err)

	_, err = parseDateParam("yesterday")
	require.Error(t, err)
}

func TestWriteNotificationEvent(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeNotificationEvent(w, dto.NotificationResponse{ID: 4, StudentID: 2, Type: "generic", Message: "hi"}))
	require.Contains(t, buf.String(), "id: 4\nevent: notification\ndata: {")
	require.Contains(t, buf.String(), `"message":"hi"`)

	buf.Reset()
	require.NoError(t, writeKeepAlive(w))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte(": keep-alive ")))
}
