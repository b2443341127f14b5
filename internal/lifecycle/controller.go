package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// JobStore persists jobs. Writes that depend on the current status go through
// UpdateJobIf so concurrent reconciles cannot regress or overwrite a terminal state.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id, ownerID string) (*types.Job, error)
	FindJob(ctx context.Context, id string) (*types.Job, error)
	ListByStatus(ctx context.Context, statuses ...types.JobStatus) ([]*types.Job, error)
	ListByOwner(ctx context.Context, ownerID string, status types.JobStatus, limit int) ([]*types.Job, error)
	UpdateJobIf(ctx context.Context, id, ownerID string, from []types.JobStatus, upd types.JobUpdate) (bool, error)
	DeleteJob(ctx context.Context, id, ownerID string) (bool, error)
}

// SpeakerNames reads the current label -> display name mapping of a job
type SpeakerNames interface {
	SpeakerNames(ctx context.Context, jobID string) (map[string]string, error)
}

// Provider is the external speech-to-text service
type Provider interface {
	Submit(ctx context.Context, audio []byte) (string, error)
	Fetch(ctx context.Context, providerJobID string) (transcription.Result, error)
}

// AudioSource loads the audio behind a job's audio_ref
type AudioSource interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// TranscriptSink receives every finalized transcript text
type TranscriptSink interface {
	Name() string
	Publish(ctx context.Context, job *types.Job) error
}

// Outcome describes what a single Reconcile call observed
type Outcome int

const (
	OutcomeSkipped    Outcome = iota // job was not processing
	OutcomeRunning                   // provider still working
	OutcomeCompleted                 // this call finalized the job as completed
	OutcomeFailed                    // this call finalized the job as error
	OutcomeTransient                 // provider unreachable, retry later
	OutcomeSuperseded                // another caller finalized the job first
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTransient:
		return "transient"
	case OutcomeSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Done reports whether polling the job again is pointless
func (o Outcome) Done() bool {
	return o != OutcomeRunning && o != OutcomeTransient
}

// CreateRequest describes a new job
type CreateRequest struct {
	OwnerID    string
	Title      string
	SourceType string
	AudioRef   string
}

// Controller owns the job state machine:
// pending -> processing -> completed | error, plus the administrative override
// processing -> completed | error.
type Controller struct {
	jobs     JobStore
	names    SpeakerNames
	provider Provider
	audio    AudioSource
	sinks    []TranscriptSink
	locks    *jobLocks
	now      func() time.Time
	newID    func() string
}

// NewController creates a lifecycle controller
func NewController(jobs JobStore, names SpeakerNames, provider Provider, audio AudioSource, sinks ...TranscriptSink) *Controller {
	return &Controller{
		jobs:     jobs,
		names:    names,
		provider: provider,
		audio:    audio,
		sinks:    sinks,
		locks:    newJobLocks(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Create inserts a pending job. The provider is not contacted.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*types.Job, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if strings.TrimSpace(req.AudioRef) == "" {
		return nil, fmt.Errorf("audio reference is required")
	}
	if req.Title == "" {
		req.Title = "untitled"
	}
	if req.SourceType == "" {
		req.SourceType = types.SourceUpload
	}

	job := &types.Job{
		ID:         c.newID(),
		OwnerID:    req.OwnerID,
		Title:      req.Title,
		SourceType: req.SourceType,
		AudioRef:   req.AudioRef,
		Status:     types.StatusPending,
		CreatedAt:  c.now(),
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("Job %s created (owner: %s, source: %s, name: %s)", job.ID, job.OwnerID, job.SourceType, job.Title)
	return job, nil
}

// Submit sends a pending job's audio to the provider and moves it to processing.
// Audio or provider failures are recorded on the job as status error.
func (c *Controller) Submit(ctx context.Context, id, ownerID string) (*types.Job, error) {
	job, err := c.jobs.GetJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusPending {
		return nil, fmt.Errorf("submit job %s in status %s: %w", id, job.Status, types.ErrInvalidTransition)
	}

	audio, err := c.audio.Load(ctx, job.AudioRef)
	if err != nil {
		c.failPending(ctx, job, "Audio file unavailable: "+err.Error())
		return nil, fmt.Errorf("submit job %s: %w", id, err)
	}

	providerID, err := c.provider.Submit(ctx, audio)
	if err != nil {
		c.failPending(ctx, job, "Transcription submission failed: "+err.Error())
		if errors.Is(err, types.ErrProviderRejected) {
			return nil, fmt.Errorf("submit job %s: %w", id, err)
		}
		return nil, fmt.Errorf("submit job %s: %w: %w", id, types.ErrProviderRejected, err)
	}

	ok, err := c.jobs.UpdateJobIf(ctx, id, ownerID, []types.JobStatus{types.StatusPending}, types.JobUpdate{
		Status:        types.Ptr(types.StatusProcessing),
		ProviderJobID: types.Ptr(providerID),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Deleted or moved by someone else while the upload was in flight
		current, err := c.jobs.GetJob(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("submit job %s: status changed to %s: %w", id, current.Status, types.ErrInvalidTransition)
	}

	log.Printf("Job %s submitted (provider id: %s)", id, providerID)
	return c.jobs.GetJob(ctx, id, ownerID)
}

// Reconcile checks the provider once and finalizes the job if the provider
// reports a terminal status. It is a no-op unless the job is processing.
// Provider transport failures never change the job.
func (c *Controller) Reconcile(ctx context.Context, id, ownerID string) (Outcome, error) {
	job, err := c.jobs.GetJob(ctx, id, ownerID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if job.Status != types.StatusProcessing {
		return OutcomeSkipped, nil
	}
	if job.ProviderJobID == nil || *job.ProviderJobID == "" {
		log.Printf("Job %s: processing without a provider id, leaving for the staleness sweep", id)
		return OutcomeSkipped, nil
	}

	res, err := c.provider.Fetch(ctx, *job.ProviderJobID)
	if err != nil {
		log.Printf("Job %s: provider status check failed, will retry: %v", id, err)
		return OutcomeTransient, nil
	}

	switch res.Kind {
	case transcription.ResultRunning:
		return OutcomeRunning, nil
	case transcription.ResultFailed:
		return c.finalizeFailed(ctx, job, res.Message)
	case transcription.ResultCompleted:
		return c.finalizeCompleted(ctx, job, res.Transcript)
	}
	return OutcomeSkipped, fmt.Errorf("job %s: unexpected provider result %s", id, res.Kind)
}

// Reformat recomputes transcript_text of a completed job from transcript_raw and
// the current speaker mapping. Jobs in other states are returned unchanged.
// Renders of one job are serialized so the last write reflects the latest mapping.
func (c *Controller) Reformat(ctx context.Context, id, ownerID string) (*types.Job, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	job, err := c.jobs.GetJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusCompleted || len(job.TranscriptRaw) == 0 {
		return job, nil
	}

	text, err := c.render(ctx, job.ID, job.TranscriptRaw)
	if err != nil {
		return nil, err
	}
	if job.TranscriptText != nil && *job.TranscriptText == text {
		return job, nil
	}

	ok, err := c.jobs.UpdateJobIf(ctx, id, ownerID, []types.JobStatus{types.StatusCompleted}, types.JobUpdate{
		TranscriptText: types.Ptr(text),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.jobs.GetJob(ctx, id, ownerID)
	}

	job.TranscriptText = types.Ptr(text)
	log.Printf("Job %s: transcript reformatted", id)
	c.publish(ctx, job)
	return job, nil
}

// ForceTerminal is the administrative override for jobs stuck in processing.
// A forced completion formats the cached payload when there is one, otherwise
// message becomes the transcript text; a forced error records message.
func (c *Controller) ForceTerminal(ctx context.Context, id, ownerID string, status types.JobStatus, message string) (*types.Job, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("force job %s to %s: %w", id, status, types.ErrInvalidTransition)
	}

	unlock := c.locks.lock(id)
	defer unlock()

	job, err := c.jobs.GetJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusProcessing {
		return nil, fmt.Errorf("force job %s from %s: %w", id, job.Status, types.ErrInvalidTransition)
	}

	upd := types.JobUpdate{Status: types.Ptr(status)}
	if status == types.StatusCompleted {
		text := message
		if len(job.TranscriptRaw) > 0 {
			if text, err = c.render(ctx, job.ID, job.TranscriptRaw); err != nil {
				return nil, err
			}
		}
		upd.TranscriptText = types.Ptr(text)
	} else {
		upd.ErrorMessage = types.Ptr(message)
		upd.ClearTranscriptText = true
	}

	ok, err := c.jobs.UpdateJobIf(ctx, id, ownerID, []types.JobStatus{types.StatusProcessing}, upd)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := c.jobs.GetJob(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("force job %s: already %s: %w", id, current.Status, types.ErrInvalidTransition)
	}

	log.Printf("Job %s forced to %s: %s", id, status, message)
	job, err = c.jobs.GetJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if status == types.StatusCompleted {
		c.publish(ctx, job)
	}
	return job, nil
}

// Get returns the stored job without contacting the provider
func (c *Controller) Get(ctx context.Context, id, ownerID string) (*types.Job, error) {
	return c.jobs.GetJob(ctx, id, ownerID)
}

// Lookup returns a job of any owner, for administrative callers
func (c *Controller) Lookup(ctx context.Context, id string) (*types.Job, error) {
	return c.jobs.FindJob(ctx, id)
}

// List returns an owner's jobs, newest first
func (c *Controller) List(ctx context.Context, ownerID string, status types.JobStatus, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.jobs.ListByOwner(ctx, ownerID, status, limit)
}

// ListByStatus returns jobs of every owner in the given status
func (c *Controller) ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	return c.jobs.ListByStatus(ctx, status)
}

// Delete removes the job and its speaker labels
func (c *Controller) Delete(ctx context.Context, id, ownerID string) error {
	deleted, err := c.jobs.DeleteJob(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	log.Printf("Job %s deleted", id)
	return nil
}

func (c *Controller) finalizeCompleted(ctx context.Context, job *types.Job, t transcription.Transcript) (Outcome, error) {
	unlock := c.locks.lock(job.ID)
	defer unlock()

	raw, err := t.Encode()
	if err != nil {
		return OutcomeSkipped, err
	}
	text, err := c.render(ctx, job.ID, raw)
	if err != nil {
		return OutcomeSkipped, err
	}

	ok, err := c.jobs.UpdateJobIf(ctx, job.ID, job.OwnerID, []types.JobStatus{types.StatusProcessing}, types.JobUpdate{
		Status:          types.Ptr(types.StatusCompleted),
		TranscriptRaw:   raw,
		TranscriptText:  types.Ptr(text),
		DurationSeconds: types.Ptr(transcription.Duration(t)),
		SpeakerCount:    types.Ptr(transcription.SpeakerCount(t)),
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if !ok {
		return OutcomeSuperseded, nil
	}

	log.Printf("Job %s completed (%d speakers, %.0fs)", job.ID, transcription.SpeakerCount(t), transcription.Duration(t))
	if done, err := c.jobs.GetJob(ctx, job.ID, job.OwnerID); err == nil {
		c.publish(ctx, done)
	}
	return OutcomeCompleted, nil
}

func (c *Controller) finalizeFailed(ctx context.Context, job *types.Job, message string) (Outcome, error) {
	ok, err := c.jobs.UpdateJobIf(ctx, job.ID, job.OwnerID, []types.JobStatus{types.StatusProcessing}, types.JobUpdate{
		Status:       types.Ptr(types.StatusError),
		ErrorMessage: types.Ptr("Transcription failed: " + message),
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if !ok {
		return OutcomeSuperseded, nil
	}
	log.Printf("Job %s failed at provider: %s", job.ID, message)
	return OutcomeFailed, nil
}

func (c *Controller) failPending(ctx context.Context, job *types.Job, message string) {
	ok, err := c.jobs.UpdateJobIf(ctx, job.ID, job.OwnerID, []types.JobStatus{types.StatusPending}, types.JobUpdate{
		Status:       types.Ptr(types.StatusError),
		ErrorMessage: types.Ptr(message),
	})
	if err != nil {
		log.Printf("Job %s: failed to record submission error: %v", job.ID, err)
		return
	}
	if ok {
		log.Printf("Job %s: %s", job.ID, message)
	}
}

// render formats a cached payload with the job's current speaker mapping
func (c *Controller) render(ctx context.Context, jobID string, raw []byte) (string, error) {
	t, err := transcription.DecodeTranscript(raw)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", jobID, err)
	}
	names, err := c.names.SpeakerNames(ctx, jobID)
	if err != nil {
		return "", err
	}
	return transcription.Format(t, names), nil
}

func (c *Controller) publish(ctx context.Context, job *types.Job) {
	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, job); err != nil {
			log.Printf("Job %s: %s publish failed: %v", job.ID, sink.Name(), err)
		}
	}
}

// jobLocks hands out one mutex per job id; entries are dropped once unused
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*jobLock)}
}

func (l *jobLocks) lock(id string) func() {
	l.mu.Lock()
	jl, ok := l.locks[id]
	if !ok {
		jl = &jobLock{}
		l.locks[id] = jl
	}
	jl.refs++
	l.mu.Unlock()

	jl.Lock()
	return func() {
		jl.Unlock()
		l.mu.Lock()
		jl.refs--
		if jl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
