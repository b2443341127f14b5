package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// Lister selects candidate jobs across all owners
type Lister interface {
	ListByStatus(ctx context.Context, statuses ...types.JobStatus) ([]*types.Job, error)
	ListCreatedBefore(ctx context.Context, status types.JobStatus, cutoff time.Time) ([]*types.Job, error)
	ListCreatedSince(ctx context.Context, status types.JobStatus, cutoff time.Time) ([]*types.Job, error)
}

// Controller is the part of the lifecycle controller the sweeper drives
type Controller interface {
	Get(ctx context.Context, id, ownerID string) (*types.Job, error)
	Reconcile(ctx context.Context, id, ownerID string) (lifecycle.Outcome, error)
	ForceTerminal(ctx context.Context, id, ownerID string, status types.JobStatus, message string) (*types.Job, error)
}

// Report summarizes one sweep
type Report struct {
	Trigger    string        `json:"trigger"`
	Pending    int           `json:"pending"`
	Checked    int           `json:"checked"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Running    int           `json:"running"`
	Transient  int           `json:"transient"`
	Stale      int           `json:"stale"`
	Superseded int           `json:"superseded"`
	Errors     int           `json:"errors"`
	Took       time.Duration `json:"took"`
}

func (r *Report) String() string {
	return fmt.Sprintf("checked=%d completed=%d failed=%d running=%d transient=%d stale=%d pending=%d errors=%d (%s)",
		r.Checked, r.Completed, r.Failed, r.Running, r.Transient, r.Stale, r.Pending, r.Errors, r.Took.Round(time.Millisecond))
}

// Sweeper re-drives jobs whose watcher is gone: after a restart, on a
// schedule, and when a processing job is read.
type Sweeper struct {
	jobs        Lister
	ctrl        Controller
	staleAfter  time.Duration
	parallelism int
	now         func() time.Time
}

// NewSweeper creates a sweeper. Jobs processing for longer than staleAfter are
// forced to error by the scheduled sweep.
func NewSweeper(jobs Lister, ctrl Controller, staleAfter time.Duration, parallelism int) *Sweeper {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Sweeper{
		jobs:        jobs,
		ctrl:        ctrl,
		staleAfter:  staleAfter,
		parallelism: parallelism,
		now:         time.Now,
	}
}

// Startup reconciles every processing job regardless of age. Pending jobs
// are reported but never resubmitted.
func (s *Sweeper) Startup(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{Trigger: "startup"}

	jobs, err := s.jobs.ListByStatus(ctx, types.StatusPending, types.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("startup sweep: %w", err)
	}

	var processing []*types.Job
	for _, job := range jobs {
		if job.Status == types.StatusPending {
			report.Pending++
			log.Printf("Sweep[startup]: job %s pending since %s, not resubmitted",
				job.ID, job.CreatedAt.Format(time.RFC3339))
			continue
		}
		processing = append(processing, job)
	}

	s.reconcileAll(ctx, processing, report)
	report.Took = s.now().Sub(start)
	log.Printf("Sweep[startup]: %s", report)
	return report, ctx.Err()
}

// Scheduled reconciles recent processing jobs and forces the ones older
// than the staleness bound to error without contacting the provider.
func (s *Sweeper) Scheduled(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{Trigger: "scheduled"}
	cutoff := start.Add(-s.staleAfter)

	fresh, err := s.jobs.ListCreatedSince(ctx, types.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("scheduled sweep: %w", err)
	}
	stale, err := s.jobs.ListCreatedBefore(ctx, types.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("scheduled sweep: %w", err)
	}

	message := fmt.Sprintf("Transcription stuck in processing for more than %s", s.staleAfter)
	for _, job := range stale {
		_, err := s.ctrl.ForceTerminal(ctx, job.ID, job.OwnerID, types.StatusError, message)
		switch {
		case err == nil:
			report.Stale++
			log.Printf("Sweep[scheduled]: job %s: %v (created %s)", job.ID, types.ErrStale, job.CreatedAt.Format(time.RFC3339))
		case errors.Is(err, types.ErrInvalidTransition), errors.Is(err, types.ErrNotFound):
			report.Superseded++
		default:
			report.Errors++
			log.Printf("Sweep[scheduled]: failed to expire job %s: %v", job.ID, err)
		}
	}

	s.reconcileAll(ctx, fresh, report)
	report.Took = s.now().Sub(start)
	if report.Checked > 0 || report.Stale > 0 {
		log.Printf("Sweep[scheduled]: %s", report)
	}
	return report, ctx.Err()
}

// OnRead reconciles a processing job once before it is returned to a reader
func (s *Sweeper) OnRead(ctx context.Context, id, ownerID string) (*types.Job, error) {
	job, err := s.ctrl.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusProcessing {
		return job, nil
	}

	outcome, err := s.ctrl.Reconcile(ctx, id, ownerID)
	if err != nil {
		log.Printf("Sweep[read]: job %s: %v", id, err)
		return job, nil
	}
	if outcome == lifecycle.OutcomeRunning || outcome == lifecycle.OutcomeTransient {
		return job, nil
	}
	return s.ctrl.Get(ctx, id, ownerID)
}

func (s *Sweeper) reconcileAll(ctx context.Context, jobs []*types.Job, report *Report) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.parallelism)

	for _, job := range jobs {
		job := job
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := s.ctrl.Reconcile(ctx, job.ID, job.OwnerID)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				if !errors.Is(err, types.ErrNotFound) {
					report.Errors++
					log.Printf("Sweep[%s]: job %s: %v", report.Trigger, job.ID, err)
				}
				return nil
			}
			report.tally(outcome)
			return nil
		})
	}
	g.Wait()
}

func (r *Report) tally(o lifecycle.Outcome) {
	switch o {
	case lifecycle.OutcomeCompleted:
		r.Completed++
	case lifecycle.OutcomeFailed:
		r.Failed++
	case lifecycle.OutcomeRunning:
		r.Running++
	case lifecycle.OutcomeTransient:
		r.Transient++
	case lifecycle.OutcomeSuperseded, lifecycle.OutcomeSkipped:
		r.Superseded++
	}
}
