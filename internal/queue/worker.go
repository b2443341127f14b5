package queue

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/types"
)

// Jobs is the part of the lifecycle controller a watcher drives
type Jobs interface {
	Get(ctx context.Context, id, ownerID string) (*types.Job, error)
	Reconcile(ctx context.Context, id, ownerID string) (lifecycle.Outcome, error)
}

// Config controls watcher pacing
type Config struct {
	Workers        int
	Interval       time.Duration
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// WorkerPool polls submitted jobs until they reach a terminal state.
// Each watched job gets one reconcile per interval, at most MaxAttempts times;
// whatever is left after that is picked up by the recovery sweeps.
type WorkerPool struct {
	tasks    chan *WatchTask
	cfg      Config
	jobs     Jobs
	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching map[string]struct{}
}

// NewWorkerPool creates a watcher pool
func NewWorkerPool(cfg Config, jobs Jobs) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		tasks:    make(chan *WatchTask, 100),
		cfg:      cfg,
		jobs:     jobs,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
		watching: make(map[string]struct{}),
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	log.Printf("Starting watcher pool with %d workers (interval: %s, max attempts: %d)",
		wp.cfg.Workers, wp.cfg.Interval, wp.cfg.MaxAttempts)
	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels in-flight checks and waits for the workers to exit.
// Pending timers are dropped.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.stopChan)
		wp.cancel()
		wp.wg.Wait()
		log.Println("Watcher pool stopped")
	})
}

// Watch starts polling a job. It returns false if the job is already watched
// or the pool has been stopped.
func (wp *WorkerPool) Watch(jobID, ownerID string) bool {
	select {
	case <-wp.stopChan:
		return false
	default:
	}

	wp.mu.Lock()
	if _, ok := wp.watching[jobID]; ok {
		wp.mu.Unlock()
		return false
	}
	wp.watching[jobID] = struct{}{}
	wp.mu.Unlock()

	log.Printf("Watcher: job %s watched", jobID)
	wp.schedule(NewWatchTask(jobID, ownerID))
	return true
}

// Active returns the number of jobs currently watched
func (wp *WorkerPool) Active() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.watching)
}

func (wp *WorkerPool) schedule(task *WatchTask) {
	time.AfterFunc(wp.cfg.Interval, func() {
		select {
		case <-wp.stopChan:
			wp.finish(task)
		case wp.tasks <- task:
		}
	})
}

func (wp *WorkerPool) finish(task *WatchTask) {
	wp.mu.Lock()
	delete(wp.watching, task.JobID)
	wp.mu.Unlock()
}

// worker processes watch tasks from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.stopChan:
			return
		case task := <-wp.tasks:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("Watcher %d: PANIC checking job %s: %v\n%s",
							id, task.JobID, r, string(debug.Stack()))
						wp.finish(task)
					}
				}()

				if wp.check(id, task) {
					wp.schedule(task)
				} else {
					wp.finish(task)
				}
			}()
		}
	}
}

// check runs one attempt and reports whether the job should be polled again
func (wp *WorkerPool) check(workerID int, task *WatchTask) bool {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.cfg.AttemptTimeout)
	defer cancel()

	task.Attempt++

	job, err := wp.jobs.Get(ctx, task.JobID, task.OwnerID)
	if errors.Is(err, types.ErrNotFound) {
		log.Printf("Watcher %d: job %s no longer exists, stopping", workerID, task.JobID)
		return false
	}
	if err != nil {
		log.Printf("Watcher %d: job %s attempt %d/%d: %v", workerID, task.JobID, task.Attempt, wp.cfg.MaxAttempts, err)
		return wp.more(workerID, task, "unreadable")
	}
	if job.Status.Terminal() {
		return false
	}

	outcome, err := wp.jobs.Reconcile(ctx, task.JobID, task.OwnerID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false
		}
		log.Printf("Watcher %d: job %s attempt %d/%d: %v", workerID, task.JobID, task.Attempt, wp.cfg.MaxAttempts, err)
		return wp.more(workerID, task, string(job.Status))
	}
	if outcome.Done() {
		log.Printf("Watcher %d: job %s %s after %d checks (%s)",
			workerID, task.JobID, outcome, task.Attempt, time.Since(task.StartedAt).Round(time.Second))
		return false
	}
	return wp.more(workerID, task, outcome.String())
}

func (wp *WorkerPool) more(workerID int, task *WatchTask, state string) bool {
	if task.Attempt < wp.cfg.MaxAttempts {
		return true
	}
	log.Printf("Watcher %d: job %s still %s after %d checks, leaving it to the recovery sweep",
		workerID, task.JobID, state, task.Attempt)
	return false
}
