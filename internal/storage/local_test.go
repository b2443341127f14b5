package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// TestLocalStoragePublishOverwrites writes text and metadata, replacing them on republish.
func TestLocalStoragePublishOverwrites(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	job := &types.Job{
		ID:             "job-1",
		OwnerID:        "team/alice",
		Title:          "standup",
		TranscriptText: types.Ptr("Speaker A: hello"),
		SpeakerCount:   types.Ptr(1),
	}

	if err := ls.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	job.TranscriptText = types.Ptr("Alice: hello")
	if err := ls.Publish(context.Background(), job); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}

	path := ls.Path(job)
	if filepath.Dir(path) != filepath.Join(dir, "team_alice") {
		t.Fatalf("path = %s", path)
	}
	text, err := os.ReadFile(path)
	if err != nil || string(text) != "Alice: hello" {
		t.Fatalf("text = %q, %v", text, err)
	}

	raw, err := os.ReadFile(strings.TrimSuffix(path, ".txt") + "_meta.json")
	if err != nil {
		t.Fatalf("ReadFile(meta) error = %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("meta is not JSON: %v", err)
	}
	if meta["job_id"] != "job-1" || meta["word_count"] != float64(2) {
		t.Fatalf("meta = %v", meta)
	}
}

// TestLocalStorageConcurrentPublish republishes one job from several goroutines.
func TestLocalStorageConcurrentPublish(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := &types.Job{ID: "job-1", OwnerID: "alice", TranscriptText: types.Ptr(fmt.Sprintf("Speaker A: take %d", i))}
			errs <- ls.Publish(context.Background(), job)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	text, err := os.ReadFile(filepath.Join(dir, "alice", "job-1.txt"))
	if err != nil || !strings.HasPrefix(string(text), "Speaker A: take ") {
		t.Fatalf("text = %q, %v", text, err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "alice", "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

// TestLocalStorageRequiresText refuses jobs without a transcript.
func TestLocalStorageRequiresText(t *testing.T) {
	ls := NewLocalStorage(t.TempDir())
	if err := ls.Publish(context.Background(), &types.Job{ID: "x", OwnerID: "a"}); err == nil {
		t.Fatalf("Publish() error = nil, want error")
	}
}

// TestSanitizeFilename strips path separators and reserved characters.
func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"weekly sync": "weekly sync",
		"../../etc":   ".._.._etc",
		"a:b*c?":      "a_b_c_",
		"   ":         "untitled",
		"..":          "untitled",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
