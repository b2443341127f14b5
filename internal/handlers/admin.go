package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// AdminHandler exposes operator tools across all owners
type AdminHandler struct {
	ctrl     Lifecycle
	recovery Recovery
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(ctrl Lifecycle, recovery Recovery) *AdminHandler {
	return &AdminHandler{ctrl: ctrl, recovery: recovery}
}

// ForceRequest is the body of a forced transition
type ForceRequest struct {
	Status  types.JobStatus `json:"status"`
	Message string          `json:"message"`
}

// ListJobs returns every job in the requested status
func (h *AdminHandler) ListJobs(c *fiber.Ctx) error {
	status := types.JobStatus(c.Query("status", string(types.StatusProcessing)))
	if !status.Valid() {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unknown status " + string(status),
			"code":  "ERR_INVALID_STATUS",
		})
	}
	jobs, err := h.ctrl.ListByStatus(c.UserContext(), status)
	if err != nil {
		return respondError(c, err)
	}
	if jobs == nil {
		jobs = []*types.Job{}
	}
	return c.JSON(jobs)
}

// Force moves a processing job to completed or error
func (h *AdminHandler) Force(c *fiber.Ctx) error {
	var req ForceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}
	if !req.Status.Terminal() {
		return c.Status(400).JSON(fiber.Map{
			"error": "Status must be completed or error",
			"code":  "ERR_INVALID_STATUS",
		})
	}
	if req.Message == "" {
		req.Message = "Manually marked as " + string(req.Status)
	}

	ctx := c.UserContext()
	job, err := h.ctrl.Lookup(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	job, err = h.ctrl.ForceTerminal(ctx, job.ID, job.OwnerID, req.Status, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}

// Sweep runs the scheduled recovery sweep now
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.recovery.Scheduled(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}
