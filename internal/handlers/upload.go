package handlers

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// UploadHandler handles file uploads
type UploadHandler struct {
	ctrl      Lifecycle
	watcher   Watcher
	tempDir   string
	maxSizeMB int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(ctrl Lifecycle, watcher Watcher, tempDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		ctrl:      ctrl,
		watcher:   watcher,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	// Get uploaded file
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	// Validate file size
	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}
	if file.Size == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Uploaded file is empty",
			"code":  "ERR_EMPTY_FILE",
		})
	}

	// Validate file format
	if !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	tempPath := filepath.Join(h.tempDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	ctx := c.UserContext()
	job, err := h.ctrl.Create(ctx, lifecycle.CreateRequest{
		OwnerID:    owner,
		Title:      c.FormValue("name"),
		SourceType: types.SourceUpload,
		AudioRef:   tempPath,
	})
	if err != nil {
		return respondError(c, err)
	}

	job, err = submitAndWatch(ctx, h.ctrl, h.watcher, job)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(job)
}
