package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const DefaultBaseURL = "https://api.assemblyai.com/v2"

// AssemblyAIConfig configures the AssemblyAI client
type AssemblyAIConfig struct {
	BaseURL        string
	APIKey         string
	Language       string
	RequestTimeout time.Duration // per attempt
	MaxAttempts    int
	RetryDelay     time.Duration
}

// AssemblyAIClient submits audio to AssemblyAI and polls transcript status
type AssemblyAIClient struct {
	cfg  AssemblyAIConfig
	http *http.Client
}

// NewAssemblyAIClient creates a new provider client
func NewAssemblyAIClient(cfg AssemblyAIConfig) *AssemblyAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &AssemblyAIClient{
		cfg:  cfg,
		http: &http.Client{},
	}
}

// Submit uploads the audio and starts a diarized transcript, returning the provider job id
func (c *AssemblyAIClient) Submit(ctx context.Context, audio []byte) (string, error) {
	var upload struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload", audio, "application/octet-stream", &upload); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if upload.UploadURL == "" {
		return "", fmt.Errorf("upload failed: %w: empty upload_url", types.ErrProviderRejected)
	}

	body, err := json.Marshal(map[string]interface{}{
		"audio_url":      upload.UploadURL,
		"speaker_labels": true,
		"language_code":  c.cfg.Language,
	})
	if err != nil {
		return "", err
	}

	var started struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/transcript", body, "application/json", &started); err != nil {
		return "", fmt.Errorf("start transcript failed: %w", err)
	}
	if started.ID == "" {
		return "", fmt.Errorf("start transcript failed: %w: empty id", types.ErrProviderRejected)
	}

	log.Printf("AssemblyAI: transcript %s started", started.ID)
	return started.ID, nil
}

// Fetch returns the current status of a provider transcript.
// Any failure to obtain an authoritative status is reported as ErrProviderTransient.
func (c *AssemblyAIClient) Fetch(ctx context.Context, providerJobID string) (Result, error) {
	var payload transcriptPayload
	if err := c.do(ctx, http.MethodGet, "/transcript/"+providerJobID, nil, "", &payload); err != nil {
		if !errors.Is(err, types.ErrProviderTransient) {
			err = fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
		}
		return Result{}, err
	}
	return payload.result()
}

// transcriptPayload matches the fields of GET /transcript/{id} we rely on
type transcriptPayload struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Text          *string  `json:"text"`
	Error         string   `json:"error"`
	AudioDuration *float64 `json:"audio_duration"`
	LanguageCode  string   `json:"language_code"`
	Utterances    []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
	} `json:"utterances"`
}

func (p transcriptPayload) result() (Result, error) {
	switch p.Status {
	case "queued", "processing":
		return Result{Kind: ResultRunning}, nil
	case "error":
		msg := p.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return Result{Kind: ResultFailed, Message: msg}, nil
	case "completed":
		t := Transcript{Language: p.LanguageCode}
		if p.Text != nil {
			t.Text = *p.Text
		}
		if p.AudioDuration != nil {
			t.AudioDuration = *p.AudioDuration
		}
		for _, u := range p.Utterances {
			speaker := u.Speaker
			if speaker == "" {
				speaker = UnknownLabel
			}
			t.Utterances = append(t.Utterances, Utterance{
				Speaker: speaker,
				Text:    u.Text,
				StartMS: u.Start,
				EndMS:   u.End,
			})
		}
		return Result{Kind: ResultCompleted, Transcript: t}, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected status %q", types.ErrProviderTransient, p.Status)
	}
}

// do performs one API call with a per-attempt timeout and bounded retries.
// 4xx responses are rejections and are not retried; everything else is transient.
func (c *AssemblyAIClient) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		lastErr = c.attempt(ctx, method, path, body, contentType, out)
		if lastErr == nil || errors.Is(lastErr, types.ErrProviderRejected) {
			return lastErr
		}
		log.Printf("AssemblyAI: %s %s attempt %d/%d failed: %v", method, path, attempt, c.cfg.MaxAttempts, lastErr)
		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", types.ErrProviderTransient, ctx.Err())
		case <-time.After(time.Duration(attempt) * c.cfg.RetryDelay):
		}
	}
	return lastErr
}

func (c *AssemblyAIClient) attempt(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProviderRejected, err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: http %d: %s", types.ErrProviderRejected, resp.StatusCode, strings.TrimSpace(string(b)))
		}
		return fmt.Errorf("%w: http %d: %s", types.ErrProviderTransient, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", types.ErrProviderTransient, err)
	}
	return nil
}
