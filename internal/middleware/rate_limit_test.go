package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/middleware"
)

func TestRateLimitIsPerLearner(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(len(c.Get("X-Learner"))))
		return c.Next()
	})
	app.Post("/submissions", middleware.RateLimit("submissions", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	post := func(learner string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/submissions", nil)
		req.Header.Set("X-Learner", learner)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusCreated, post("a").StatusCode)

	limited := post("a")
	require.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	require.Equal(t, "60", limited.Header.Get(fiber.HeaderRetryAfter))

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decode(t, limited, &body)
	require.False(t, body.Success)
	require.Equal(t, "too many submissions, slow down", body.Message)

	require.Equal(t, fiber.StatusCreated, post("bb").StatusCode)
}
