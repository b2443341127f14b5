package transcription

import (
	"encoding/json"
	"fmt"
)

// Utterance is one diarized speaker turn
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms,omitempty"`
	EndMS   int64  `json:"end_ms,omitempty"`
}

// Transcript is the provider payload cached on the job as transcript_raw
type Transcript struct {
	Text          string      `json:"text"`
	Utterances    []Utterance `json:"utterances,omitempty"`
	AudioDuration float64     `json:"audio_duration,omitempty"`
	Language      string      `json:"language,omitempty"`
}

// Encode serializes the transcript for storage
func (t Transcript) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// DecodeTranscript parses a cached transcript_raw value
func DecodeTranscript(raw json.RawMessage) (Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return Transcript{}, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return t, nil
}

// ResultKind tags the provider status variants
type ResultKind int

const (
	ResultRunning ResultKind = iota
	ResultCompleted
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultRunning:
		return "running"
	case ResultCompleted:
		return "completed"
	case ResultFailed:
		return "failed"
	}
	return "unknown"
}

// Result is a parsed provider status. Transcript is set for ResultCompleted,
// Message for ResultFailed. Transport failures are reported as errors instead.
type Result struct {
	Kind       ResultKind
	Transcript Transcript
	Message    string
}
