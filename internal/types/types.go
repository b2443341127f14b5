package types

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a transcription job
type JobStatus string

// Job status constants
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceGDrive = "gdrive"
	SourceStream = "stream"
)

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition can leave s
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is the single persisted record of one uploaded audio file
type Job struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Title           string          `json:"title"`
	SourceType      string          `json:"source_type"`
	AudioRef        string          `json:"-"`
	Status          JobStatus       `json:"status"`
	ProviderJobID   *string         `json:"provider_job_id,omitempty"`
	TranscriptRaw   json.RawMessage `json:"-"`
	TranscriptText  *string         `json:"transcript_text,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	SpeakerCount    *int            `json:"speaker_count,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Age returns how long ago the job was created
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// JobUpdate is a partial update; nil fields are left untouched.
// ClearTranscriptText forces transcript_text to NULL.
type JobUpdate struct {
	Status              *JobStatus
	ProviderJobID       *string
	TranscriptRaw       json.RawMessage
	TranscriptText      *string
	ClearTranscriptText bool
	ErrorMessage        *string
	DurationSeconds     *float64
	SpeakerCount        *int
}

// Empty reports whether the update would change nothing
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.ProviderJobID == nil && u.TranscriptRaw == nil &&
		u.TranscriptText == nil && !u.ClearTranscriptText && u.ErrorMessage == nil &&
		u.DurationSeconds == nil && u.SpeakerCount == nil
}

// SpeakerLabel maps a provider diarization label to a user display name
type SpeakerLabel struct {
	JobID       string    `json:"job_id"`
	Label       string    `json:"label"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
