package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesGradingCollectors(t *testing.T) {
	GradingOutcomes().WithLabelValues("quiz", PassLabel(true)).Inc()
	PlacementLevels().WithLabelValues("intermediate").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `grading_outcomes_total{kind="quiz",result="passed"}`)
	require.Contains(t, string(body), `placement_levels_assigned_total{level="intermediate"}`)
}

func TestPassLabel(t *testing.T) {
	require.Equal(t, "passed", PassLabel(true))
	require.Equal(t, "failed", PassLabel(false))
}
