package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// GradingHandler exposes manual grading and peer review endpoints on a submission.
type GradingHandler struct {
	grading service.GradingService
	reviews service.PeerReviewService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(grading service.GradingService, reviews service.PeerReviewService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading: grading,
		reviews: reviews,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches routes under the submissions group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Patch("/:id/grade", staffOnly(h.grade))
	router.Post("/:id/reviews", authenticated(h.review))
	router.Get("/:id/reviews", authenticated(h.listReviews))
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.grading.Grade(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *GradingHandler) review(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PeerReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.reviews.Review(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "peer review recorded", result)
}

func (h *GradingHandler) listReviews(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	reviews, err := h.reviews.List(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer reviews retrieved", reviews)
}
