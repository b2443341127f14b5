package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/recovery"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/speakers"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// UserHeader carries the authenticated caller's id, set by the fronting auth proxy
const UserHeader = "X-User-ID"

// AdminHeader carries the shared admin token
const AdminHeader = "X-Admin-Token"

// Lifecycle is the job controller as seen by the HTTP layer
type Lifecycle interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*types.Job, error)
	Submit(ctx context.Context, id, ownerID string) (*types.Job, error)
	Get(ctx context.Context, id, ownerID string) (*types.Job, error)
	Lookup(ctx context.Context, id string) (*types.Job, error)
	List(ctx context.Context, ownerID string, status types.JobStatus, limit int) ([]*types.Job, error)
	ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error)
	Reformat(ctx context.Context, id, ownerID string) (*types.Job, error)
	ForceTerminal(ctx context.Context, id, ownerID string, status types.JobStatus, message string) (*types.Job, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// Recovery is the sweeper as seen by the HTTP layer
type Recovery interface {
	OnRead(ctx context.Context, id, ownerID string) (*types.Job, error)
	Scheduled(ctx context.Context) (*recovery.Report, error)
}

// Watcher starts background polling of a submitted job
type Watcher interface {
	Watch(jobID, ownerID string) bool
}

// ownerID returns the caller id or writes a 401
func ownerID(c *fiber.Ctx) (string, bool) {
	owner := strings.TrimSpace(c.Get(UserHeader))
	return owner, owner != ""
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(401).JSON(fiber.Map{
		"error": "Missing " + UserHeader + " header",
		"code":  "ERR_NO_USER",
	})
}

// RequireAdmin rejects requests without the configured admin token.
// An empty token disables the admin routes entirely.
func RequireAdmin(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		given := c.Get(AdminHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			return c.Status(403).JSON(fiber.Map{
				"error": "Admin access required",
				"code":  "ERR_FORBIDDEN",
			})
		}
		return c.Next()
	}
}

// respondError maps domain errors onto HTTP responses
func respondError(c *fiber.Ctx, err error) error {
	var verr *speakers.ValidationError
	switch {
	case errors.Is(err, types.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "Not found", "code": "ERR_NOT_FOUND"})
	case errors.Is(err, types.ErrInvalidTransition):
		return c.Status(409).JSON(fiber.Map{"error": err.Error(), "code": "ERR_INVALID_TRANSITION"})
	case errors.As(err, &verr):
		return c.Status(400).JSON(fiber.Map{"error": verr.Error(), "code": "ERR_INVALID_INPUT"})
	case errors.Is(err, types.ErrStoreContention):
		return c.Status(503).JSON(fiber.Map{"error": "Database busy, retry shortly", "code": "ERR_STORE_BUSY"})
	}
	log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal error", "code": "ERR_INTERNAL"})
}

// submitAndWatch submits a freshly created job and starts its watcher.
// Submission failures are already recorded on the job, so the stored record is returned.
func submitAndWatch(ctx context.Context, ctrl Lifecycle, watcher Watcher, job *types.Job) (*types.Job, error) {
	submitted, err := ctrl.Submit(ctx, job.ID, job.OwnerID)
	if err != nil {
		log.Printf("Job %s: submission failed: %v", job.ID, err)
		return ctrl.Get(ctx, job.ID, job.OwnerID)
	}
	if watcher != nil {
		watcher.Watch(submitted.ID, submitted.OwnerID)
	}
	return submitted, nil
}
