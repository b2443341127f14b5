package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// TestAudioLoaderReadsFile checks the plain read path.
func TestAudioLoaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.mp3")
	if err := os.WriteFile(path, []byte("id3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := NewAudioLoader(false, t.TempDir()).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != "id3" {
		t.Fatalf("data = %q, want id3", data)
	}
}

// TestAudioLoaderUnavailable checks missing and empty sources.
func TestAudioLoaderUnavailable(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewAudioLoader(false, dir)
	for _, ref := range []string{filepath.Join(dir, "missing.wav"), empty, dir} {
		if _, err := loader.Load(context.Background(), ref); !errors.Is(err, types.ErrSourceUnavailable) {
			t.Fatalf("Load(%s) error = %v, want ErrSourceUnavailable", ref, err)
		}
	}
}

// TestValidateAudioFormat checks extension handling.
func TestValidateAudioFormat(t *testing.T) {
	if !ValidateAudioFormat("Weekly Sync.M4A") {
		t.Fatal("expected m4a to be supported")
	}
	if ValidateAudioFormat("notes.txt") {
		t.Fatal("expected txt to be rejected")
	}
}
