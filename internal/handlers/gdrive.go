package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// Downloader fetches a Google Drive file by id on behalf of owner
type Downloader interface {
	Download(ctx context.Context, owner, fileID string, dst io.Writer) error
}

// GDriveHandler handles Google Drive link processing
type GDriveHandler struct {
	ctrl       Lifecycle
	watcher    Watcher
	downloader Downloader
	tempDir    string
}

// NewGDriveHandler creates a new Google Drive handler
func NewGDriveHandler(ctrl Lifecycle, watcher Watcher, downloader Downloader, tempDir string) *GDriveHandler {
	return &GDriveHandler{
		ctrl:       ctrl,
		watcher:    watcher,
		downloader: downloader,
		tempDir:    tempDir,
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Handle processes Google Drive link requests
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.URL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	// Extract file ID from various Google Drive URL formats
	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid Google Drive URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	if req.Name == "" {
		req.Name = "gdrive_file"
	}

	ctx := c.UserContext()
	tempPath := filepath.Join(h.tempDir, uuid.New().String()+".audio")
	log.Printf("Downloading from Google Drive: %s", fileID)
	if err := h.download(ctx, owner, fileID, tempPath); err != nil {
		os.Remove(tempPath)
		log.Printf("Failed to download from Google Drive: %v", err)
		if errors.Is(err, types.ErrSourceUnavailable) {
			return c.Status(400).JSON(fiber.Map{
				"error": "File not accessible (may be private or doesn't exist)",
				"code":  "ERR_FILE_NOT_ACCESSIBLE",
			})
		}
		return c.Status(502).JSON(fiber.Map{
			"error": "Failed to download file from Google Drive",
			"code":  "ERR_DOWNLOAD_FAILED",
		})
	}

	job, err := h.ctrl.Create(ctx, lifecycle.CreateRequest{
		OwnerID:    owner,
		Title:      req.Name,
		SourceType: types.SourceGDrive,
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

func (h *GDriveHandler) download(ctx context.Context, owner, fileID, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := h.downloader.Download(ctx, owner, fileID, out); err != nil {
		return err
	}
	return out.Sync()
}

var (
	driveFilePath = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveIDParam  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBareID   = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePath.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// https://drive.google.com/open?id={ID}
	if matches := driveIDParam.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Direct ID (25-40 characters)
	if matches := driveBareID.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}
