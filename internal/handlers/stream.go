package handlers

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const ownerLocal = "owner"

// StreamHandler handles WebSocket recording uploads and job status streams
type StreamHandler struct {
	ctrl         Lifecycle
	watcher      Watcher
	tempDir      string
	pollInterval time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(ctrl Lifecycle, watcher Watcher, tempDir string, pollInterval time.Duration) *StreamHandler {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &StreamHandler{
		ctrl:         ctrl,
		watcher:      watcher,
		tempDir:      tempDir,
		pollInterval: pollInterval,
	}
}

// Upgrade admits WebSocket upgrades and records the caller id. Browsers
// cannot set headers on WebSocket requests, so a user_id query parameter is accepted too.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	owner, ok := ownerID(c)
	if !ok {
		owner = strings.TrimSpace(c.Query("user_id"))
	}
	if owner == "" {
		return unauthorized(c)
	}
	c.Locals(ownerLocal, owner)
	return c.Next()
}

// Record receives an audio recording (text frame = name, binary frames =
// audio, "END" = done), creates and submits a job, then streams its status.
func (h *StreamHandler) Record(c *websocket.Conn) {
	defer c.Close()

	owner, _ := c.Locals(ownerLocal).(string)
	var (
		buffer      bytes.Buffer
		requestName string
	)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			return
		}

		if messageType == websocket.TextMessage {
			msgStr := string(message)
			if msgStr == "END" {
				break
			}
			if len(msgStr) > 0 && len(msgStr) < 200 {
				requestName = msgStr
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		c.WriteJSON(fiber.Map{"error": "No audio data received", "code": "ERR_NO_AUDIO"})
		return
	}
	if requestName == "" {
		requestName = "stream_recording"
	}

	tempPath := filepath.Join(h.tempDir, uuid.New().String()+".webm")
	if err := os.WriteFile(tempPath, buffer.Bytes(), 0644); err != nil {
		log.Printf("Failed to save stream buffer: %v", err)
		c.WriteJSON(fiber.Map{"error": "Failed to save recording", "code": "ERR_SAVE_FAILED"})
		return
	}
	log.Printf("Stream saved to %s (%d bytes)", tempPath, buffer.Len())

	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, lifecycle.CreateRequest{
		OwnerID:    owner,
		Title:      requestName,
		SourceType: types.SourceStream,
		AudioRef:   tempPath,
	})
	if err != nil {
		log.Printf("Failed to create stream job: %v", err)
		c.WriteJSON(fiber.Map{"error": "Failed to create job", "code": "ERR_INTERNAL"})
		return
	}
	if job, err = submitAndWatch(ctx, h.ctrl, h.watcher, job); err != nil {
		log.Printf("Failed to read stream job: %v", err)
		return
	}

	h.follow(c, job)
}

// Status streams a job's record until it reaches a terminal state
func (h *StreamHandler) Status(c *websocket.Conn) {
	defer c.Close()

	owner, _ := c.Locals(ownerLocal).(string)
	job, err := h.ctrl.Get(context.Background(), c.Params("id"), owner)
	if err != nil {
		code := "ERR_INTERNAL"
		if errors.Is(err, types.ErrNotFound) {
			code = "ERR_NOT_FOUND"
		}
		c.WriteJSON(fiber.Map{"error": "Job unavailable", "code": code})
		return
	}
	h.follow(c, job)
}

// follow sends the job whenever it changes. The watcher pool does the
// reconciling; this only reads.
func (h *StreamHandler) follow(c *websocket.Conn, job *types.Job) {
	if err := c.WriteJSON(job); err != nil {
		return
	}
	lastUpdate := job.UpdatedAt

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for !job.Status.Terminal() {
		<-ticker.C

		current, err := h.ctrl.Get(context.Background(), job.ID, job.OwnerID)
		if err != nil {
			c.WriteJSON(fiber.Map{"error": "Job unavailable", "code": "ERR_NOT_FOUND"})
			return
		}
		job = current
		if job.UpdatedAt.Equal(lastUpdate) {
			continue
		}
		lastUpdate = job.UpdatedAt
		if err := c.WriteJSON(job); err != nil {
			return
		}
	}
}
