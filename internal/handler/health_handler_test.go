package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
)

type healthEnvelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    handler.HealthResponse `json:"data"`
}

func healthApp(probes ...handler.HealthProbe) *fiber.App {
	cfg := config.Config{
		AppName: "GEMA Grading API",
		AppEnv:  "test",
	}
	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, probes...))
	return app
}

func TestHealthCheck(t *testing.T) {
	app := healthApp(handler.HealthProbe{Name: "postgres", Check: func(context.Context) error { return nil }})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload healthEnvelope
	err = json.NewDecoder(resp.Body).Decode(&payload)
	assert.NoError(t, err)
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, "GEMA Grading API", payload.Data.Service)
	assert.Equal(t, "test", payload.Data.Environment)
	assert.Equal(t, "up", payload.Data.Dependencies["postgres"])
	assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckDegradedWhenProbeFails(t *testing.T) {
	app := healthApp(
		handler.HealthProbe{Name: "postgres", Check: func(context.Context) error { return nil }},
		handler.HealthProbe{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload healthEnvelope
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "degraded", payload.Data.Status)
	assert.Equal(t, "service degraded", payload.Message)
	assert.Equal(t, "up", payload.Data.Dependencies["postgres"])
	assert.Equal(t, "down: connection refused", payload.Data.Dependencies["redis"])
}
