package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/squad-service/internal/api/dto"
	"github.com/spec-kit/squad-service/internal/queue"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// AssignmentsHandler accepts assignment triggers and reports job status.
type AssignmentsHandler struct {
	queue *queue.Queue
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(q *queue.Queue) *AssignmentsHandler {
	return &AssignmentsHandler{queue: q}
}

// Trigger POST /v1/assignments.
func (h *AssignmentsHandler) Trigger(c *fiber.Ctx) error {
	var req dto.TriggerAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.MemberID) == "" {
		return apperrors.NewValidationError("member_id required", nil)
	}
	job, err := h.queue.Enqueue(c.UserContext(), req.MemberID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// JobStatus GET /v1/assignments/jobs/:id.
func (h *AssignmentsHandler) JobStatus(c *fiber.Ctx) error {
	job, err := h.queue.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// JobCounts GET /v1/assignments/jobs.
func (h *AssignmentsHandler) JobCounts(c *fiber.Ctx) error {
	counts, err := h.queue.Counts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobCountsResponse{
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
	}})
}
