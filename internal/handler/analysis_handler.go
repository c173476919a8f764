package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/service"
)

// AnalysisHandler accepts analysis requests.
type AnalysisHandler struct {
	runner *service.Runner
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(runner *service.Runner) *AnalysisHandler {
	return &AnalysisHandler{runner: runner}
}

// Register sets up analysis routes.
func (h *AnalysisHandler) Register(router fiber.Router) {
	router.Post("/analyze", h.Analyze)
}

// Analyze enqueues a job and returns it without waiting for the result.
func (h *AnalysisHandler) Analyze(c fiber.Ctx) error {
	var req domain.JobRequest
	if err := c.Bind().JSON(&req); err != nil {
		return invalidBody(c, err)
	}

	job, err := h.runner.Submit(c.Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}
