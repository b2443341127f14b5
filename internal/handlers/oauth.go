package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/cache"
)

// Authorizer runs the Google Drive consent flow
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, owner, code string) error
}

// OAuthHandler connects Google Drive for the calling owner. States are single
// use, expire after the cache's max age and carry the owner to the callback.
type OAuthHandler struct {
	auth   Authorizer
	states *cache.TTLCache[string, string]
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(auth Authorizer, states *cache.TTLCache[string, string]) *OAuthHandler {
	return &OAuthHandler{auth: auth, states: states}
}

// Connect issues a state token and returns the consent URL
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	if h.auth == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Google Drive credentials not configured",
			"code":  "ERR_GDRIVE_UNAVAILABLE",
		})
	}

	state := uuid.New().String()
	h.states.Put(state, owner)
	return c.JSON(fiber.Map{
		"auth_url":   h.auth.AuthURL(state),
		"expires_in": int(h.states.MaxAge().Seconds()),
	})
}

// Callback validates the state and stores the Drive token
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if h.auth == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Google Drive credentials not configured",
			"code":  "ERR_GDRIVE_UNAVAILABLE",
		})
	}
	if errParam := c.Query("error"); errParam != "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Authorization denied: " + errParam,
			"code":  "ERR_OAUTH_DENIED",
		})
	}

	owner, ok := h.states.Take(c.Query("state"))
	if !ok {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid or expired state",
			"code":  "ERR_INVALID_STATE",
		})
	}
	code := c.Query("code")
	if code == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Missing authorization code",
			"code":  "ERR_NO_CODE",
		})
	}

	if err := h.auth.Exchange(c.UserContext(), owner, code); err != nil {
		log.Printf("Google Drive: token exchange for %s failed: %v", owner, err)
		return c.Status(502).JSON(fiber.Map{
			"error": "Token exchange failed",
			"code":  "ERR_OAUTH_EXCHANGE",
		})
	}

	log.Printf("Google Drive connected by %s", owner)
	return c.JSON(fiber.Map{"connected": true})
}
