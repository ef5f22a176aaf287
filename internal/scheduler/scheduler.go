// Package scheduler fires pipeline jobs on a cron-style schedule, enforcing
// that no job ever overlaps with itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/esomin/gpu-market-intel/internal/metrics"
)

// JobFunc is a pipeline invocation wired to a named job.
type JobFunc func(ctx context.Context) error

// JobResult is retained in history for introspection.
type JobResult struct {
	JobID    string
	FiredAt  time.Time
	Success  bool
	Error    string
	Duration time.Duration
}

// job is the scheduler's internal bookkeeping for one registered job.
type job struct {
	id       string
	schedule string
	fn       JobFunc
	running  bool
}

// DefaultGracePeriod bounds how long Stop waits for in-flight jobs to settle.
const DefaultGracePeriod = 30 * time.Second

// DefaultHistorySize is how many past JobResults are retained per job.
const DefaultHistorySize = 50

// Scheduler fires registered jobs on their cron schedule. The same job
// never runs concurrently with itself; a collision is dropped with a
// logged warning, not queued.
type Scheduler struct {
	cron        *cron.Cron
	logger      *slog.Logger
	gracePeriod time.Duration
	historySize int

	mu      sync.Mutex
	jobs    map[string]*job
	history map[string][]JobResult
	running bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Scheduler) { s.gracePeriod = d }
}

// WithHistorySize overrides DefaultHistorySize.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) { s.historySize = n }
}

// New constructs a Scheduler with no jobs registered yet.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:        cron.New(),
		logger:      slog.Default(),
		gracePeriod: DefaultGracePeriod,
		historySize: DefaultHistorySize,
		jobs:        make(map[string]*job),
		history:     make(map[string][]JobResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job under id, firing fn per the cron schedule expression.
// Must be called before Start.
func (s *Scheduler) Register(id, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &job{id: id, schedule: schedule, fn: fn}
	s.jobs[id] = j

	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(context.Background(), j)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", id, err)
	}
	return nil
}

// Start begins firing registered jobs. Idempotent: calling Start twice is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop waits up to the configured grace period for in-flight jobs to settle
// before returning. Safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.gracePeriod):
		s.logger.Warn("scheduler stop: grace period elapsed with jobs still in flight")
	}
	s.logger.Info("scheduler stopped")
}

// Trigger fires job id out-of-band, still respecting the no-overlap rule.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", id)
	}
	s.runJob(ctx, j)
	return nil
}

func outcomeFor(result JobResult) string {
	if result.Success {
		return "success"
	}
	return "failure"
}

// runJob enforces no-self-overlap and records the result to history.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.logger.Warn("job firing dropped: already in progress", "job_id", j.id)
		metrics.RecordJobRun(j.id, "skipped_overlap", 0)
		return
	}
	j.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		j.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	err := j.fn(ctx)
	result := JobResult{
		JobID:    j.id,
		FiredAt:  start,
		Success:  err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
		s.logger.Error("job failed", "job_id", j.id, "error", err)
	} else {
		s.logger.Info("job succeeded", "job_id", j.id, "duration", result.Duration)
	}

	s.recordHistory(j.id, result)
	metrics.RecordJobRun(j.id, outcomeFor(result), result.Duration)
}

func (s *Scheduler) recordHistory(jobID string, result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.history[jobID], result)
	if len(history) > s.historySize {
		history = history[len(history)-s.historySize:]
	}
	s.history[jobID] = history
}

// History returns the retained JobResults for jobID, oldest first.
func (s *Scheduler) History(jobID string) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobResult, len(s.history[jobID]))
	copy(out, s.history[jobID])
	return out
}

// IsRunning reports whether jobID currently has an in-flight firing.
func (s *Scheduler) IsRunning(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	return ok && j.running
}
