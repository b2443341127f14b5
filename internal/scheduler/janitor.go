package scheduler

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// CleanOldFiles removes files older than maxAge from dir and returns how many
// were deleted and how many bytes were freed
func CleanOldFiles(dir string, maxAge time.Duration, now time.Time) (int, int64) {
	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Janitor: failed to delete old file %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Janitor: deleted %s (age: %s, size: %dKB)",
					filepath.Base(path), age.Round(time.Minute), size/1024)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Janitor: error during cleanup of %s: %v", dir, err)
	}

	if deletedCount > 0 {
		log.Printf("Janitor: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount, deletedSize
}

// EnsureDirExists creates dir if it doesn't exist
func EnsureDirExists(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	log.Printf("Directory ready: %s", dir)
	return nil
}
