package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// PlacementHandler exposes placement tests, results and enrollment checks.
type PlacementHandler struct {
	service service.PlacementService
	logger  zerolog.Logger
}

// NewPlacementHandler constructs the handler.
func NewPlacementHandler(service service.PlacementService, logger zerolog.Logger) *PlacementHandler {
	return &PlacementHandler{
		service: service,
		logger:  logger.With().Str("component", "placement_handler").Logger(),
	}
}

// Register attaches placement routes.
func (h *PlacementHandler) Register(router fiber.Router) {
	router.Post("/tests", staffOnly(h.createTest))
	router.Get("/tests/:id", authenticated(h.getTest))
	router.Post("/tests/:id/submit", authenticated(h.submit))
	router.Get("/results/latest", authenticated(h.latest))
	router.Get("/enrollment", authenticated(h.enrollment))
}

func (h *PlacementHandler) createTest(c *fiber.Ctx) error {
	var payload dto.PlacementTestCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	test, err := h.service.CreateTest(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "placement test created", test)
}

func (h *PlacementHandler) getTest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	test, err := h.service.GetTest(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "placement test retrieved", test)
}

func (h *PlacementHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PlacementSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "placement result recorded", result)
}

func (h *PlacementHandler) latest(c *fiber.Ctx) error {
	studentID, err := studentScope(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.LatestResult(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "placement result retrieved", result)
}

func (h *PlacementHandler) enrollment(c *fiber.Ctx) error {
	studentID, err := studentScope(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	check, err := h.service.CheckEnrollment(requestContext(c), studentID, c.Query("level"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "enrollment checked", check)
}
