package scheduler

import (
	"context"
	"sync"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of periodic work. Run should return when ctx is cancelled.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

type jobEntry struct {
	job      Job
	metadata *JobMetadata
	handle   gocron.Job

	mu      sync.Mutex
	running bool
}

// tryLock reports whether the caller may run the job. A job never overlaps itself.
func (e *jobEntry) tryLock() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *jobEntry) unlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}
