package scheduler

import (
	"sync"
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// JobMetadata is the execution record exposed by the job API.
type JobMetadata struct {
	JobID    string `json:"jobId"`
	Interval string `json:"interval"`

	NextExecutionTime   *time.Time `json:"nextExecutionTime,omitempty"`
	LastExecutionTime   *time.Time `json:"lastExecutionTime,omitempty"`
	LastExecutionStatus string     `json:"lastExecutionStatus,omitempty"`
	LastError           string     `json:"lastError,omitempty"`

	TotalExecutions int64 `json:"totalExecutions"`
	SuccessCount    int64 `json:"successCount"`
	FailureCount    int64 `json:"failureCount"`
	// SkippedCount counts triggers dropped because the job was still running.
	SkippedCount int64 `json:"skippedCount"`

	mu sync.Mutex
}

func (m *JobMetadata) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SuccessCount++
	m.TotalExecutions++
	now := time.Now()
	m.LastExecutionTime = &now
	m.LastExecutionStatus = StatusSuccess
	m.LastError = ""
}

func (m *JobMetadata) recordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailureCount++
	m.TotalExecutions++
	now := time.Now()
	m.LastExecutionTime = &now
	m.LastExecutionStatus = StatusFailure
	if err != nil {
		m.LastError = err.Error()
	}
}

// recordSkipped leaves the last execution fields untouched.
func (m *JobMetadata) recordSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SkippedCount++
}

// snapshot copies the record under the lock; next is the scheduler's next run, if known.
func (m *JobMetadata) snapshot(next *time.Time) *JobMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &JobMetadata{
		JobID:               m.JobID,
		Interval:            m.Interval,
		NextExecutionTime:   next,
		LastExecutionStatus: m.LastExecutionStatus,
		LastError:           m.LastError,
		TotalExecutions:     m.TotalExecutions,
		SuccessCount:        m.SuccessCount,
		FailureCount:        m.FailureCount,
		SkippedCount:        m.SkippedCount,
	}
	if m.LastExecutionTime != nil {
		t := *m.LastExecutionTime
		s.LastExecutionTime = &t
	}
	return s
}
