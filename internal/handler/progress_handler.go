package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/service"
	"github.com/noah-isme/gema-lms-api/internal/utils"
)

// ProgressHandler exposes per-student coursework overviews.
type ProgressHandler struct {
	service service.ProgressService
	logger  zerolog.Logger
}

// NewProgressHandler creates a new handler instance.
func NewProgressHandler(service service.ProgressService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		logger:  logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register attaches the progress endpoint.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Get("/progress", h.getProgress)
}

func (h *ProgressHandler) getProgress(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	if actor.ID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user context")
	}

	studentID := actor.ID
	requested, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student_id")
	}
	switch {
	case requested != nil:
		studentID = *requested
	case actor.IsStaff():
		return utils.SendError(c, fiber.StatusBadRequest, "student_id is required")
	}

	progress, err := h.service.Progress(c.UserContext(), actor, studentID)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to load progress")
	}

	return utils.SendSuccess(c, "progress retrieved", progress)
}
