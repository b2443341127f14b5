package queue

import (
	"time"
)

// WatchTask tracks one job being polled by the pool
type WatchTask struct {
	JobID     string
	OwnerID   string
	Attempt   int
	StartedAt time.Time
}

// NewWatchTask creates a task for a freshly submitted job
func NewWatchTask(jobID, ownerID string) *WatchTask {
	return &WatchTask{
		JobID:     jobID,
		OwnerID:   ownerID,
		StartedAt: time.Now(),
	}
}
