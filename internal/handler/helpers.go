package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/streak"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseOptionalUintQuery(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	id := uint(parsed)
	return &id, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	switch v := c.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return uint(parsed)
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

// studentScope resolves which student a read endpoint targets. Staff may pass
// ?student_id, everyone else is pinned to their own id.
func studentScope(c *fiber.Ctx) (uint, error) {
	actor := activityActorFromContext(c)
	if actor.IsStaff() {
		requested, err := parseOptionalUintQuery(c, "student_id")
		if err != nil {
			return 0, errors.New("invalid student_id")
		}
		if requested != nil && *requested > 0 {
			return *requested, nil
		}
	}
	if actor.ID == 0 {
		return 0, errors.New("user not authenticated")
	}
	return actor.ID, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// parseDateParam accepts a date or RFC3339 timestamp. Blank yields the zero time.
func parseDateParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, value)
}

// respondError maps service and domain errors onto HTTP statuses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationErrors.Error())
	case errors.Is(err, service.ErrInvalidQuestionPayload),
		errors.Is(err, service.ErrStudentRequired),
		errors.Is(err, service.ErrAssignmentInvalidDueDate),
		errors.Is(err, service.ErrScoreExceedsMax),
		errors.Is(err, service.ErrInvalidItemScore),
		errors.Is(err, service.ErrEmptyNotification),
		errors.Is(err, grading.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrModuleNotFound),
		errors.Is(err, service.ErrPlacementTestNotFound),
		errors.Is(err, service.ErrPlacementResultNotFound),
		errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadySubmitted),
		errors.Is(err, service.ErrAssignmentClosed),
		errors.Is(err, service.ErrSubmissionNotSubmitted),
		errors.Is(err, service.ErrDuplicateReview),
		errors.Is(err, service.ErrSelfReview),
		errors.Is(err, service.ErrAttemptsExhausted),
		errors.Is(err, service.ErrNoOpenSession),
		errors.Is(err, service.ErrSubmissionConflict),
		errors.Is(err, streak.ErrStateConflict):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, grading.ErrConfiguration),
		errors.Is(err, service.ErrPeerReviewDisabled),
		errors.Is(err, service.ErrModuleHasNoQuiz):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func staffOnly(h fiber.Handler) fiber.Handler {
	return middleware.Guard(h, middleware.AudienceStaff)
}

func authenticated(h fiber.Handler) fiber.Handler {
	return middleware.Guard(h, middleware.AudienceUser)
}
