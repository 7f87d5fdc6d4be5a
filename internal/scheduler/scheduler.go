package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/circuitbreaker"
	"github.com/svcassure/core/internal/models"
	"github.com/svcassure/core/internal/probe"
)

// ResultSink persists a completed probe execution and updates the
// probe's runtime counters. Implemented by probes.Manager so the
// scheduler stays storage-agnostic.
type ResultSink interface {
	RecordResult(ctx context.Context, tenantID string, result models.ProbeResult)
	MarkError(ctx context.Context, tenantID, probeID string)
}

// ProbeSource supplies the live probe definition at dispatch time, so
// the scheduler always executes against current parameters/timeouts
// even if they changed since the task was enqueued.
type ProbeSource interface {
	GetProbe(tenantID, probeID string) (*models.Probe, bool)
}

// Config controls the scheduler's concurrency behavior.
type Config struct {
	MaxConcurrentProbes int64
}

func DefaultConfig() Config {
	return Config{MaxConcurrentProbes: 20}
}

// Scheduler drives per-probe cadence against a shared queue, grounded
// on the teacher repo's adaptive scheduler but simplified to the
// spec's fixed per-probe interval model (spec §4.3): no adaptive
// staleness/backoff, just a due-time priority queue and a bounded
// worker pool.
type Scheduler struct {
	cfg      Config
	queue    *TaskQueue
	exec     probe.Executor
	sink     ResultSink
	source   ProbeSource
	sem      *semaphore.Weighted
	breakersMu sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
	log      zerolog.Logger
}

func New(cfg Config, exec probe.Executor, sink ResultSink, source ProbeSource, log zerolog.Logger) *Scheduler {
	if cfg.MaxConcurrentProbes <= 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		cfg:      cfg,
		queue:    NewTaskQueue(),
		exec:     exec,
		sink:     sink,
		source:   source,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentProbes),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Upsert (re)schedules a probe for its next due run.
func (s *Scheduler) Upsert(tenantID string, p *models.Probe) {
	if p.Status != models.ProbeEnabled {
		s.queue.Remove(tenantID, p.ID)
		return
	}
	nextDue := p.LastRun.Add(time.Duration(p.IntervalSeconds) * time.Second)
	now := time.Now()
	if nextDue.Before(now) {
		nextDue = now
	}
	s.queue.Upsert(ScheduledTask{
		TenantID: tenantID,
		ProbeID:  p.ID,
		NextRun:  nextDue,
		Interval: time.Duration(p.IntervalSeconds) * time.Second,
	})
}

// Remove drops a probe from scheduling (called on delete/disable).
func (s *Scheduler) Remove(tenantID, probeID string) {
	s.queue.Remove(tenantID, probeID)
}

// Run drives the scheduler loop until ctx is cancelled, dispatching
// due tasks to worker goroutines bounded by MaxConcurrentProbes.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		task, ok := s.queue.WaitNext(ctx)
		if !ok {
			return
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(task ScheduledTask) {
			defer s.sem.Release(1)
			s.dispatch(ctx, task)
		}(task)
	}
}

// dispatch executes one due probe and reschedules it for its next
// interval. If the probe is more than one interval behind, only the
// most recent interval is honored; the number of earlier misses is
// logged as missed_runs, and Probe.MissedRuns is not updated.
func (s *Scheduler) dispatch(ctx context.Context, task ScheduledTask) {
	p, ok := s.source.GetProbe(task.TenantID, task.ProbeID)
	if !ok || p.Status != models.ProbeEnabled {
		return
	}

	now := time.Now()
	missed := int64(0)
	if !p.LastRun.IsZero() && task.Interval > 0 {
		behind := now.Sub(p.LastRun.Add(task.Interval))
		if behind > task.Interval {
			missed = int64(behind / task.Interval)
		}
	}

	breaker := s.breakerFor(task.TenantID, task.ProbeID)
	if !breaker.Allow() {
		s.sink.MarkError(ctx, task.TenantID, task.ProbeID)
		s.rescheduleAfter(task, now)
		return
	}

	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	outcome := s.safeExecute(execCtx, p)
	cancel()

	result := models.ProbeResult{
		TenantID:       task.TenantID,
		ProbeID:        task.ProbeID,
		Timestamp:      now,
		Success:        outcome.Success,
		ResponseTimeMs: outcome.ResponseTimeMs,
		StatusCode:     outcome.StatusCode,
		ErrorMessage:   outcome.ErrorMessage,
		Metrics:        outcome.Metrics,
	}
	if outcome.Success {
		breaker.RecordSuccess()
	}
	s.sink.RecordResult(ctx, task.TenantID, result)
	if missed > 0 {
		s.log.Warn().Str("probe_id", task.ProbeID).Int64("missed_runs", missed).Msg("probe fell behind schedule")
	}

	s.rescheduleAfter(task, now)
}

// safeExecute recovers from executor panics, recording a failure on
// the probe's breaker and marking it ERROR rather than crashing the
// worker — an internal fault distinct from an ordinary probe failure
// (spec §4.3).
func (s *Scheduler) safeExecute(ctx context.Context, p *models.Probe) (out probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.breakerFor(p.TenantID, p.ID).RecordFailure()
			s.sink.MarkError(ctx, p.TenantID, p.ID)
			out = probe.Outcome{Success: false, ErrorMessage: "internal executor error"}
		}
	}()
	return s.exec.Execute(ctx, p.Type, p.Target, p.Parameters)
}

func (s *Scheduler) rescheduleAfter(task ScheduledTask, runAt time.Time) {
	s.queue.Upsert(ScheduledTask{
		TenantID: task.TenantID,
		ProbeID:  task.ProbeID,
		NextRun:  runAt.Add(task.Interval),
		Interval: task.Interval,
		Priority: task.Priority,
	})
}

func (s *Scheduler) breakerFor(tenantID, probeID string) *circuitbreaker.CircuitBreaker {
	key := tenantID + "::" + probeID
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	b := circuitbreaker.New(circuitbreaker.DefaultConfig())
	s.breakers[key] = b
	return b
}

// Snapshot exposes queue depth for the metrics/health endpoints.
func (s *Scheduler) Snapshot() Snapshot {
	return s.queue.Snapshot()
}
