package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/squad-service/internal/api/dto"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/service"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// MembersHandler receives profile updates and admin assignment removals.
type MembersHandler struct {
	members   *service.MemberService
	lifecycle *service.LifecycleService
}

// NewMembersHandler constructs handler.
func NewMembersHandler(members *service.MemberService, lifecycle *service.LifecycleService) *MembersHandler {
	return &MembersHandler{members: members, lifecycle: lifecycle}
}

// Sync PUT /v1/members/:id.
func (h *MembersHandler) Sync(c *fiber.Ctx) error {
	var req dto.SyncMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member, err := h.members.SyncProfile(c.UserContext(), c.Params("id"), service.MemberProfileInput{
		BirthYear:         req.BirthYear,
		PrimaryPosition:   req.PrimaryPosition,
		SecondaryPosition: req.SecondaryPosition,
		Status:            domain.MemberStatus(req.Status),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// Get GET /v1/members/:id.
func (h *MembersHandler) Get(c *fiber.Ctx) error {
	member, err := h.members.GetMember(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// RemoveAssignment DELETE /v1/members/:id/assignment.
func (h *MembersHandler) RemoveAssignment(c *fiber.Ctx) error {
	removed, err := h.lifecycle.RemoveAssignment(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAssignmentResponse(removed)})
}
