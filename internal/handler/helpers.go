package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stde-labs/stde-api/internal/middleware"
	"github.com/stde-labs/stde-api/internal/service"
	"github.com/stde-labs/stde-api/internal/utils"
)

func parseUUIDParam(c *fiber.Ctx, key string) (uuid.UUID, error) {
	value := c.Params(key)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

func userIDFromContext(c *fiber.Ctx) uuid.UUID {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
		if str, ok := v.(string); ok {
			if id, err := uuid.Parse(str); err == nil {
				return id
			}
		}
	}
	return uuid.Nil
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
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

// handleServiceError translates workflow error kinds onto HTTP statuses.
func handleServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	}

	var tagged *service.Error
	if !errors.As(err, &tagged) {
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	switch tagged.Kind {
	case service.KindNotFound:
		return utils.SendError(c, fiber.StatusNotFound, tagged.Message)
	case service.KindForbidden:
		return utils.SendError(c, fiber.StatusForbidden, tagged.Message)
	case service.KindInvalidArgument, service.KindInvalidDocument:
		return utils.SendError(c, fiber.StatusBadRequest, tagged.Message)
	case service.KindQuotaExceeded:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(tagged.RetryAfterMinutes*60))
		return utils.SendError(c, fiber.StatusTooManyRequests, tagged.Message)
	case service.KindRateLimited:
		return utils.SendError(c, fiber.StatusTooManyRequests, tagged.Message)
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, tagged.Message)
	}
}
