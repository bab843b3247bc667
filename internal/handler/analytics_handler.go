package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// AnalyticsHandler serves grading analytics for staff.
type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAnalyticsHandler constructs the handler.
func NewAnalyticsHandler(service service.AnalyticsService, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// Register attaches analytics routes to the router group.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Get("", staffOnly(h.summary))
}

func (h *AnalyticsHandler) summary(c *fiber.Ctx) error {
	assignmentID, err := parseOptionalUintQuery(c, "assignment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assignment id")
	}

	summary, err := h.service.Summary(requestContext(c), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, summary, "grading analytics", fiber.Map{"cache_hit": summary.CacheHit})
}
