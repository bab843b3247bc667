package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// StreakHandler exposes streaks, freezes, attendance sessions and the leaderboard.
type StreakHandler struct {
	service service.StreakService
	logger  zerolog.Logger
}

// NewStreakHandler constructs the handler.
func NewStreakHandler(service service.StreakService, logger zerolog.Logger) *StreakHandler {
	return &StreakHandler{
		service: service,
		logger:  logger.With().Str("component", "streak_handler").Logger(),
	}
}

// Register attaches streak routes.
func (h *StreakHandler) Register(router fiber.Router) {
	router.Get("", authenticated(h.get))
	router.Post("/activity", authenticated(h.recordActivity))
	router.Post("/freezes", staffOnly(h.grantFreeze))
	router.Post("/sessions/start", authenticated(h.startSession))
	router.Post("/sessions/end", authenticated(h.endSession))
	router.Get("/report", authenticated(h.weeklyReport))
	router.Get("/leaderboard", authenticated(h.leaderboard))
	router.Get("/badges", authenticated(h.badges))
}

func (h *StreakHandler) get(c *fiber.Ctx) error {
	studentID, err := studentScope(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.service.Get(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "streak retrieved", state)
}

func (h *StreakHandler) recordActivity(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)

	result, err := h.service.RecordActivity(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activity recorded", result)
}

func (h *StreakHandler) grantFreeze(c *fiber.Ctx) error {
	var payload dto.FreezeGrantRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	freeze, err := h.service.GrantFreeze(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "streak freeze granted", freeze)
}

func (h *StreakHandler) startSession(c *fiber.Ctx) error {
	session, err := h.service.StartSession(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session started", session)
}

func (h *StreakHandler) endSession(c *fiber.Ctx) error {
	session, err := h.service.EndSession(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "session ended", session)
}

func (h *StreakHandler) weeklyReport(c *fiber.Ctx) error {
	studentID, err := studentScope(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	weekOf, err := parseDateParam(c.Query("week_of"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid week_of")
	}

	report, err := h.service.WeeklyReport(requestContext(c), studentID, weekOf)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "weekly attendance report", report)
}

func (h *StreakHandler) leaderboard(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	entries, err := h.service.Leaderboard(requestContext(c), limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "leaderboard retrieved", entries)
}

func (h *StreakHandler) badges(c *fiber.Ctx) error {
	studentID, err := studentScope(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	badges, err := h.service.Badges(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "badges retrieved", badges)
}
