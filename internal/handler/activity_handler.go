package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stde-labs/stde-api/internal/dto"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/service"
	"github.com/stde-labs/stde-api/internal/utils"
)

// ActivityHandler exposes the audit trail to teachers.
type ActivityHandler struct {
	service   service.ActivityService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityHandler builds an activity handler instance.
func NewActivityHandler(service service.ActivityService, validator *validator.Validate, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	if userRoleFromContext(c) != models.RoleTeacher {
		return utils.SendError(c, fiber.StatusForbidden, "teacher role required")
	}

	var req dto.ActivityListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid pagination parameters")
	}

	logger := requestLogger(h.logger, c)

	page, err := h.service.List(c.UserContext(), req)
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.OK(c, page.Items, "activity retrieved", page.Pagination)
}
