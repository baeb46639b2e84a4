package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stde-labs/stde-api/internal/dto"
	"github.com/stde-labs/stde-api/internal/service"
	"github.com/stde-labs/stde-api/internal/utils"
)

// EvaluationHandler manages the evaluation endpoints.
type EvaluationHandler struct {
	service   service.EvaluationService
	quota     service.QuotaService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(service service.EvaluationService, quota service.QuotaService, validator *validator.Validate, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service:   service,
		quota:     quota,
		validator: validator,
		logger:    logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/evaluate/:documentId", h.evaluate)
	router.Get("/usage", h.usage)
	router.Get("/document/:documentId", h.getByDocument)
	router.Get("/user", h.listForUser)
	router.Put("/override/:documentId", h.override)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	documentID, err := parseUUIDParam(c, "documentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	logger := requestLogger(h.logger, c)

	result, err := h.service.Evaluate(c.UserContext(), documentID, userID)
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.SendSuccess(c, "document evaluated", result)
}

func (h *EvaluationHandler) usage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	logger := requestLogger(h.logger, c)

	stats, err := h.quota.UsageStats(c.UserContext(), userID)
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.SendSuccess(c, "usage retrieved", stats)
}

func (h *EvaluationHandler) getByDocument(c *fiber.Ctx) error {
	documentID, err := parseUUIDParam(c, "documentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	logger := requestLogger(h.logger, c)

	result, err := h.service.GetByDocument(c.UserContext(), documentID, userIDFromContext(c))
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.SendSuccess(c, "evaluation retrieved", result)
}

func (h *EvaluationHandler) listForUser(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	results, err := h.service.ListForUser(c.UserContext(), userIDFromContext(c))
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.SendSuccess(c, "evaluations retrieved", results)
}

func (h *EvaluationHandler) override(c *fiber.Ctx) error {
	documentID, err := parseUUIDParam(c, "documentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.OverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "overall_score is required")
	}

	logger := requestLogger(h.logger, c)

	result, err := h.service.Override(c.UserContext(), documentID, userIDFromContext(c), *payload.OverallScore)
	if err != nil {
		return handleServiceError(c, logger, err)
	}

	return utils.SendSuccess(c, "score overridden", result)
}
