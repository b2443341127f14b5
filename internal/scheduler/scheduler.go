package scheduler

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Task is a named periodic job
type Task struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context)
}

// Scheduler runs each task on its own ticker until stopped
type Scheduler struct {
	tasks    []Task
	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler for the given tasks
func New(tasks ...Task) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:    tasks,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}
}

// Start begins running the tasks
func (s *Scheduler) Start() {
	for _, task := range s.tasks {
		if task.Interval <= 0 || task.Run == nil {
			log.Printf("Scheduler: task %s disabled", task.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(task)
		log.Printf("Scheduler: task %s started (interval: %s)", task.Name, task.Interval)
	}
}

// Stop stops all tasks and waits for running ones to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
		s.wg.Wait()
		log.Println("Scheduler stopped")
	})
}

func (s *Scheduler) loop(task Task) {
	defer s.wg.Done()

	if task.RunOnStart {
		s.run(task)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(task)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Scheduler: PANIC in task %s: %v\n%s", task.Name, r, string(debug.Stack()))
		}
	}()
	task.Run(s.ctx)
}
