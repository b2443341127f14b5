package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// LocalStorage exports finalized transcripts to the local filesystem.
// Each job owns outputs/<owner>/<job id>.txt plus a _meta.json next to it;
// a reformat overwrites both.
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
	}
}

// Name identifies the sink in logs
func (ls *LocalStorage) Name() string {
	return "local"
}

// Path returns where the transcript text of job is written
func (ls *LocalStorage) Path(job *types.Job) string {
	return filepath.Join(ls.outputDir, sanitizeFilename(job.OwnerID), job.ID+".txt")
}

// Publish writes the transcript and its metadata to local disk
func (ls *LocalStorage) Publish(ctx context.Context, job *types.Job) error {
	if job.TranscriptText == nil {
		return fmt.Errorf("job %s has no transcript text", job.ID)
	}

	txtPath := ls.Path(job)
	metaPath := strings.TrimSuffix(txtPath, ".txt") + "_meta.json"
	if err := os.MkdirAll(filepath.Dir(txtPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeAtomic(txtPath, []byte(*job.TranscriptText)); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	metadata := map[string]interface{}{
		"job_id":           job.ID,
		"title":            job.Title,
		"source_type":      job.SourceType,
		"duration_seconds": job.DurationSeconds,
		"speaker_count":    job.SpeakerCount,
		"word_count":       len(strings.Fields(*job.TranscriptText)),
		"created_at":       job.CreatedAt,
		"exported_at":      time.Now().UTC(),
		"local_path":       txtPath,
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeAtomic(metaPath, metaJSON); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// writeAtomic replaces path so readers never see a half-written file.
// Each call writes its own temp file, so overlapping writers of one path do not collide.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

// sanitizeFilename removes invalid characters from filename
func sanitizeFilename(name string) string {
	result := strings.TrimSpace(filenameReplacer.Replace(name))
	if result == "" || result == "." || result == ".." {
		result = "untitled"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
