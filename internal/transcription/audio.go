package transcription

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// AudioLoader reads a job's source audio for submission
type AudioLoader struct {
	normalize bool
	tempDir   string
}

// NewAudioLoader creates a loader. With normalize set, audio is converted to
// 16kHz mono WAV before upload; conversion failures fall back to the original bytes.
func NewAudioLoader(normalize bool, tempDir string) *AudioLoader {
	return &AudioLoader{
		normalize: normalize,
		tempDir:   tempDir,
	}
}

// Load returns the audio bytes behind ref, or ErrSourceUnavailable
func (l *AudioLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty or not a file", types.ErrSourceUnavailable, ref)
	}

	if l.normalize {
		data, err := l.normalized(ctx, ref)
		if err == nil {
			return data, nil
		}
		log.Printf("Audio normalization failed for %s, uploading original: %v", filepath.Base(ref), err)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	return data, nil
}

func (l *AudioLoader) normalized(ctx context.Context, inputPath string) ([]byte, error) {
	outputPath := filepath.Join(l.tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))
	defer os.Remove(outputPath)

	// FFmpeg command: convert to 16kHz mono WAV
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y", // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty file")
	}
	return data, nil
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".mp4"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
