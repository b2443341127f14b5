package speakers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

const (
	maxLabelLength = 64
	maxNameLength  = 100
)

// Store persists label mappings
type Store interface {
	ListSpeakers(ctx context.Context, jobID string) ([]types.SpeakerLabel, error)
	UpsertSpeaker(ctx context.Context, jobID, label, displayName string) (types.SpeakerLabel, error)
	DeleteSpeaker(ctx context.Context, jobID, label string) (bool, error)
}

// Jobs is the part of the lifecycle controller the registry depends on
type Jobs interface {
	Get(ctx context.Context, id, ownerID string) (*types.Job, error)
	Reformat(ctx context.Context, id, ownerID string) (*types.Job, error)
}

// Registry manages per-job speaker display names. Every successful change
// triggers exactly one reformat of the job's transcript.
type Registry struct {
	store Store
	jobs  Jobs
}

// NewRegistry creates a speaker name registry
func NewRegistry(store Store, jobs Jobs) *Registry {
	return &Registry{store: store, jobs: jobs}
}

// List returns the job's mappings
func (r *Registry) List(ctx context.Context, jobID, ownerID string) ([]types.SpeakerLabel, error) {
	if _, err := r.jobs.Get(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	labels, err := r.store.ListSpeakers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []types.SpeakerLabel{}
	}
	return labels, nil
}

// Upsert maps label to name and reformats the transcript
func (r *Registry) Upsert(ctx context.Context, jobID, ownerID, label, name string) (*types.Job, error) {
	label, name, err := validate(label, name)
	if err != nil {
		return nil, err
	}
	if _, err := r.jobs.Get(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	if _, err := r.store.UpsertSpeaker(ctx, jobID, label, name); err != nil {
		return nil, err
	}
	log.Printf("Job %s: speaker %s renamed to %q", jobID, label, name)
	return r.jobs.Reformat(ctx, jobID, ownerID)
}

// UpsertMany applies several mappings and reformats once
func (r *Registry) UpsertMany(ctx context.Context, jobID, ownerID string, names map[string]string) (*types.Job, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no speaker names given")
	}
	clean := make(map[string]string, len(names))
	for label, name := range names {
		l, n, err := validate(label, name)
		if err != nil {
			return nil, err
		}
		clean[l] = n
	}
	if _, err := r.jobs.Get(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	for label, name := range clean {
		if _, err := r.store.UpsertSpeaker(ctx, jobID, label, name); err != nil {
			return nil, err
		}
	}
	log.Printf("Job %s: %d speaker names updated", jobID, len(clean))
	return r.jobs.Reformat(ctx, jobID, ownerID)
}

// Delete removes a mapping and reformats the transcript.
// Deleting a label that has no mapping is ErrNotFound and triggers nothing.
func (r *Registry) Delete(ctx context.Context, jobID, ownerID, label string) (*types.Job, error) {
	label = strings.TrimSpace(label)
	if _, err := r.jobs.Get(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	deleted, err := r.store.DeleteSpeaker(ctx, jobID, label)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, fmt.Errorf("speaker %s: %w", label, types.ErrNotFound)
	}
	log.Printf("Job %s: speaker %s mapping removed", jobID, label)
	return r.jobs.Reformat(ctx, jobID, ownerID)
}

// ValidationError reports unusable user input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func validate(label, name string) (string, string, error) {
	label = strings.TrimSpace(label)
	name = strings.TrimSpace(name)
	switch {
	case label == "":
		return "", "", &ValidationError{Field: "label", Reason: "is required"}
	case utf8.RuneCountInString(label) > maxLabelLength:
		return "", "", &ValidationError{Field: "label", Reason: fmt.Sprintf("exceeds %d characters", maxLabelLength)}
	case name == "":
		return "", "", &ValidationError{Field: "name", Reason: "is required"}
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", "", &ValidationError{Field: "name", Reason: fmt.Sprintf("exceeds %d characters", maxNameLength)}
	case strings.ContainsAny(name, "\r\n"):
		return "", "", &ValidationError{Field: "name", Reason: "must be a single line"}
	}
	return label, name, nil
}
