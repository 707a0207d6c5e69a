package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/squad-service/internal/api/dto"
	"github.com/spec-kit/squad-service/internal/domain"
	"github.com/spec-kit/squad-service/internal/policy"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// PoliciesHandler exposes the read-only policy configuration.
type PoliciesHandler struct {
	policies *policy.Store
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policies *policy.Store) *PoliciesHandler {
	return &PoliciesHandler{policies: policies}
}

// Get GET /v1/policies/:ageGroup.
func (h *PoliciesHandler) Get(c *fiber.Ctx) error {
	code := strings.ToUpper(strings.TrimSpace(c.Params("ageGroup")))
	if code == "" {
		return apperrors.NewValidationError("age group required", nil)
	}
	ageGroup := domain.AgeGroup(code)
	return c.JSON(fiber.Map{"data": dto.NewPolicyResponse(ageGroup, h.policies.Get(ageGroup))})
}

// List GET /v1/policies.
func (h *PoliciesHandler) List(c *fiber.Ctx) error {
	groups := h.policies.Groups()
	items := make([]dto.PolicyResponse, 0, len(groups)+1)
	items = append(items, dto.NewPolicyResponse("default", h.policies.Default()))
	for _, g := range groups {
		items = append(items, dto.NewPolicyResponse(g, h.policies.Get(g)))
	}
	return c.JSON(fiber.Map{"data": items})
}
