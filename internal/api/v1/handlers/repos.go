package handlers

import (
	"fmt"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/shipsure/shipsure/internal/api/v1/services"
	"github.com/shipsure/shipsure/internal/faults"
)

// ReposHandler serves the read-only repository and pull request listings
type ReposHandler struct {
	service *services.AnalysisService
}

// NewReposHandler creates a new repos handler
func NewReposHandler(service *services.AnalysisService) *ReposHandler {
	return &ReposHandler{service: service}
}

// ListRepositories lists repositories visible to the provided token
func (h *ReposHandler) ListRepositories(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("token is required"))
	}

	repositories, err := h.service.ListRepositories(c.Context(), token)
	if err != nil {
		if faults.IsConfiguration(err) {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
		}
		return c.Status(fiber.StatusBadGateway).
			JSON(errServer(fmt.Sprintf("failed to list repositories: %v", err)))
	}

	return c.JSON(success(repositories))
}

// ListPullRequests lists pull requests for one repository, hiding generated
// test companion PRs
func (h *ReposHandler) ListPullRequests(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("token is required"))
	}
	owner := c.Params("owner")
	repo := c.Params("repo")
	state := c.Query("state", "open")

	pulls, err := h.service.ListPullRequests(c.Context(), token, owner, repo, state)
	if err != nil {
		if faults.IsConfiguration(err) {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
		}
		return c.Status(fiber.StatusBadGateway).
			JSON(errServer(fmt.Sprintf("failed to list pull requests: %v", err)))
	}

	return c.JSON(success(pulls))
}
