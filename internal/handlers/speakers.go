package handlers

import (
	"context"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// Speakers is the speaker name registry as seen by the HTTP layer
type Speakers interface {
	List(ctx context.Context, jobID, ownerID string) ([]types.SpeakerLabel, error)
	Upsert(ctx context.Context, jobID, ownerID, label, name string) (*types.Job, error)
	UpsertMany(ctx context.Context, jobID, ownerID string, names map[string]string) (*types.Job, error)
	Delete(ctx context.Context, jobID, ownerID, label string) (*types.Job, error)
}

// SpeakersHandler manages speaker display names of a job
type SpeakersHandler struct {
	registry Speakers
}

// NewSpeakersHandler creates a new speakers handler
func NewSpeakersHandler(registry Speakers) *SpeakersHandler {
	return &SpeakersHandler{registry: registry}
}

// SpeakersRequest renames one label, or several at once via Speakers
type SpeakersRequest struct {
	Label    string            `json:"label"`
	Name     string            `json:"name"`
	Speakers map[string]string `json:"speakers"`
}

// List returns the job's label mappings
func (h *SpeakersHandler) List(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	labels, err := h.registry.List(c.UserContext(), c.Params("id"), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(labels)
}

// Put stores display names and returns the reformatted job
func (h *SpeakersHandler) Put(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	var req SpeakersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	ctx := c.UserContext()
	var (
		job *types.Job
		err error
	)
	if len(req.Speakers) > 0 {
		job, err = h.registry.UpsertMany(ctx, c.Params("id"), owner, req.Speakers)
	} else {
		job, err = h.registry.Upsert(ctx, c.Params("id"), owner, req.Label, req.Name)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}

// Delete removes one label mapping and returns the reformatted job
func (h *SpeakersHandler) Delete(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	label, err := url.PathUnescape(c.Params("label"))
	if err != nil {
		label = c.Params("label")
	}
	job, err := h.registry.Delete(c.UserContext(), c.Params("id"), owner, label)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}
