package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// JobsHandler serves an owner's jobs
type JobsHandler struct {
	ctrl     Lifecycle
	recovery Recovery
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(ctrl Lifecycle, recovery Recovery) *JobsHandler {
	return &JobsHandler{ctrl: ctrl, recovery: recovery}
}

// List returns the caller's jobs, newest first. Processing jobs are
// reconciled once before they are returned.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	status := types.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unknown status " + string(status),
			"code":  "ERR_INVALID_STATUS",
		})
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	ctx := c.UserContext()
	jobs, err := h.ctrl.List(ctx, owner, status, limit)
	if err != nil {
		return respondError(c, err)
	}
	for i, job := range jobs {
		if job.Status != types.StatusProcessing {
			continue
		}
		if fresh, err := h.recovery.OnRead(ctx, job.ID, owner); err == nil {
			jobs[i] = fresh
		}
	}
	if jobs == nil {
		jobs = []*types.Job{}
	}
	return c.JSON(jobs)
}

// Get returns one job, reconciling it first if it is still processing
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	job, err := h.recovery.OnRead(c.UserContext(), c.Params("id"), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}

// Delete removes a job and its speaker names
func (h *JobsHandler) Delete(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.ctrl.Delete(c.UserContext(), c.Params("id"), owner); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(204)
}

// Reformat recomputes the transcript text from the cached provider payload
func (h *JobsHandler) Reformat(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	job, err := h.ctrl.Reformat(c.UserContext(), c.Params("id"), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}
