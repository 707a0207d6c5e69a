package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/squad-service/internal/api/dto"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/service"
)

// SquadsHandler serves squad reads and administrative transitions.
type SquadsHandler struct {
	lifecycle *service.LifecycleService
}

// NewSquadsHandler constructs handler.
func NewSquadsHandler(lifecycle *service.LifecycleService) *SquadsHandler {
	return &SquadsHandler{lifecycle: lifecycle}
}

// List GET /v1/squads?age_group=.
func (h *SquadsHandler) List(c *fiber.Ctx) error {
	ageGroup := domain.AgeGroup(strings.ToUpper(strings.TrimSpace(c.Query("age_group"))))
	squads, err := h.lifecycle.ListSquads(c.UserContext(), ageGroup)
	if err != nil {
		return err
	}
	items := make([]dto.SquadSummary, 0, len(squads))
	for _, s := range squads {
		items = append(items, dto.NewSquadSummary(s))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /v1/squads/:id.
func (h *SquadsHandler) Get(c *fiber.Ctx) error {
	view, err := h.lifecycle.GetSquad(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSquadDetail(view.Squad, view.Group, view.Assignments)})
}

// Delete DELETE /v1/squads/:id.
func (h *SquadsHandler) Delete(c *fiber.Ctx) error {
	if err := h.lifecycle.DeleteSquad(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Close POST /v1/squads/:id/close.
func (h *SquadsHandler) Close(c *fiber.Ctx) error {
	squad, err := h.lifecycle.CloseSquad(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSquadSummary(squad)})
}
