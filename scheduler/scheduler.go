// Package scheduler runs periodic background jobs on gocron. A job never overlaps
// itself, panics are recovered, and each run is recorded for the job API.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyvewellness/tenantgate/logger"
)

const tracerName = "github.com/hyvewellness/tenantgate/scheduler"

// Scheduler owns the gocron scheduler, created on the first registration.
type Scheduler struct {
	log    logger.Logger
	tracer trace.Tracer

	mu   sync.RWMutex
	cron gocron.Scheduler
	jobs map[string]*jobEntry

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:            log,
		tracer:         otel.Tracer(tracerName),
		jobs:           make(map[string]*jobEntry),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Every registers job to run every interval, first after one interval has passed.
func (s *Scheduler) Every(jobID string, interval time.Duration, job Job) error {
	if strings.TrimSpace(jobID) == "" {
		return &ValidationError{Field: "jobID", Message: "must not be empty"}
	}
	if interval <= 0 {
		return &ValidationError{Field: "interval", Message: "must be positive"}
	}
	if s.shutdownCtx.Err() != nil {
		return ErrShuttingDown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return &ValidationError{Field: "jobID", Message: fmt.Sprintf("%q already registered", jobID)}
	}
	if err := s.ensureStarted(); err != nil {
		return err
	}

	entry := &jobEntry{
		job:      job,
		metadata: &JobMetadata{JobID: jobID, Interval: interval.String()},
	}
	handle, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.run(entry, TriggerScheduled) }),
		gocron.WithName(jobID),
	)
	if err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", jobID, err)
	}
	entry.handle = handle
	s.jobs[jobID] = entry

	s.log.Info().
		Str("job_id", jobID).
		Dur("interval", interval).
		Msg("Job registered")
	return nil
}

// must be called with s.mu held
func (s *Scheduler) ensureStarted() error {
	if s.cron != nil {
		return nil
	}
	c, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler: create: %w", err)
	}
	s.cron = c
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
	return nil
}

// Trigger starts jobID outside its schedule and returns without waiting for it.
// A trigger that finds the job running is counted as skipped.
func (s *Scheduler) Trigger(jobID string) error {
	if s.shutdownCtx.Err() != nil {
		return ErrShuttingDown
	}
	s.mu.RLock()
	entry, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	go s.run(entry, TriggerManual)
	return nil
}

// Jobs returns a snapshot of every registered job ordered by id.
func (s *Scheduler) Jobs() []*JobMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*JobMetadata, 0, len(s.jobs))
	for _, entry := range s.jobs {
		var next *time.Time
		if entry.handle != nil {
			if t, err := entry.handle.NextRun(); err == nil && !t.IsZero() {
				next = &t
			}
		}
		out = append(out, entry.metadata.snapshot(next))
	}
	slices.SortFunc(out, func(a, b *JobMetadata) int { return strings.Compare(a.JobID, b.JobID) })
	return out
}

func (s *Scheduler) run(entry *jobEntry, trigger string) {
	id := entry.metadata.JobID
	if s.shutdownCtx.Err() != nil {
		s.log.Warn().Str("job_id", id).Msg("Job trigger skipped, scheduler is shutting down")
		return
	}
	if !entry.tryLock() {
		s.log.Warn().Str("job_id", id).Str("trigger", trigger).Msg("Job trigger skipped, job is already running")
		entry.metadata.recordSkipped()
		return
	}
	s.wg.Add(1)
	defer func() {
		entry.unlock()
		s.wg.Done()
	}()

	ctx, span := s.tracer.Start(s.shutdownCtx, "job "+id, trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("job.trigger", trigger),
	))
	defer span.End()

	start := time.Now()
	err := s.execute(ctx, entry)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.metadata.recordFailure(err)
		s.log.Error().
			Err(err).
			Str("job_id", id).
			Str("trigger", trigger).
			Dur("duration", elapsed).
			Msg("Job failed")
		return
	}
	entry.metadata.recordSuccess()
	s.log.Debug().
		Str("job_id", id).
		Str("trigger", trigger).
		Dur("duration", elapsed).
		Msg("Job completed")
}

// execute turns a panic into an error.
func (s *Scheduler) execute(ctx context.Context, entry *jobEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job panicked: %v", r)
		}
	}()
	return entry.job.Run(ctx)
}

// Shutdown stops scheduling, cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdownCancel()

	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		if err := c.Shutdown(); err != nil {
			return fmt.Errorf("scheduler: shutdown: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler shutdown timed out, jobs still running")
		return fmt.Errorf("scheduler: shutdown: %w", ctx.Err())
	}
}
