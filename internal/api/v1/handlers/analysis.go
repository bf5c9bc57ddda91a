package handlers

import (
	"errors"
	"fmt"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/shipsure/shipsure/internal/api/v1/services"
	"github.com/shipsure/shipsure/internal/faults"
	"github.com/shipsure/shipsure/pkg/types"
)

// AnalysisHandler serves job submission, status and result endpoints
type AnalysisHandler struct {
	service *services.AnalysisService
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// SubmitAnalysis accepts an analysis request and starts a background job
func (h *AnalysisHandler) SubmitAnalysis(c *fiber.Ctx) error {
	var req types.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(fmt.Sprintf("invalid request body: %v", err)))
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	accepted, err := h.service.SubmitAnalysis(&req)
	if err != nil {
		if faults.IsConfiguration(err) {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(fmt.Sprintf("failed to submit analysis: %v", err)))
	}

	return c.Status(fiber.StatusAccepted).JSON(success(accepted))
}

// GetJobStatus returns the current status of an analysis job
func (h *AnalysisHandler) GetJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("job id is required"))
	}

	job, err := h.service.GetJobStatus(jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound(fmt.Sprintf("unknown job: %s", jobID)))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(fmt.Sprintf("failed to get job status: %v", err)))
	}

	return c.JSON(success(job))
}

// GetJobResults returns the persisted aggregate result of a completed job
func (h *AnalysisHandler) GetJobResults(c *fiber.Ctx) error {
	// The literal /analyses/latest/results route carries no :id parameter.
	jobID := c.Params("id", services.LatestJobID)

	result, err := h.service.GetJobResult(jobID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrJobNotCompleted):
			return c.Status(fiber.StatusConflict).
				JSON(errConflict(fmt.Sprintf("job %s has not completed yet", jobID)))
		case errors.Is(err, services.ErrJobNotFound), errors.Is(err, services.ErrNoResults):
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound(fmt.Sprintf("no results for job: %s", jobID)))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(fmt.Sprintf("failed to load results: %v", err)))
	}

	return c.JSON(success(result))
}
