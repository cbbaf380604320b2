// Package scheduler fires interval and daily jobs with lease-based mutual
// exclusion across cooperating processes, recovering stale leases at
// startup and advancing next_run_at deterministically on every terminal
// outcome.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/store"
)

// Job is a registered handler. Run is invoked at most once per lease
// acquisition; its return value determines success/failure bookkeeping.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Definition describes a job's schedule, independent of its handler.
type Definition struct {
	Name       string
	Kind       store.ScheduleKind
	IntervalMs int64  // ScheduleInterval only
	DailyHHMM  string // ScheduleDaily only, "HH:MM"
	Timezone   string // ScheduleDaily only, IANA name; "" means UTC
	LeaseMs    int64
}

type registered struct {
	def     Definition
	handler Job
}

// Scheduler runs a polling loop at a configurable cadence that, per
// registered job, attempts a lease CAS and invokes the handler on success.
type Scheduler struct {
	repo         *store.JobRepository
	clock        clock.Clock
	log          zerolog.Logger
	tickInterval time.Duration
	ownerID      string

	mu       sync.Mutex
	jobs     map[string]registered
	inFlight map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. tickInterval defaults to 1 second when zero.
func New(repo *store.JobRepository, c clock.Clock, log zerolog.Logger, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Scheduler{
		repo:         repo,
		clock:        c,
		log:          log.With().Str("component", "scheduler").Logger(),
		tickInterval: tickInterval,
		ownerID:      uuid.NewString(),
		jobs:         make(map[string]registered),
		inFlight:     make(map[string]bool),
	}
}

// RegisterJob idempotently inserts the job row and keeps the handler in
// memory for the tick loop to invoke. Re-registering the same name updates
// schedule fields but never resets next_run_at or the failure counter (the
// store enforces this on the SQL side).
func (s *Scheduler) RegisterJob(def Definition, handler Job) error {
	if def.Name == "" {
		return fmt.Errorf("scheduler: job definition must have a name")
	}
	if def.LeaseMs <= 0 {
		return fmt.Errorf("scheduler: job %s must have a positive lease", def.Name)
	}

	now := s.clock.Now()
	var initial time.Time
	switch def.Kind {
	case store.ScheduleInterval:
		if def.IntervalMs <= 0 {
			return fmt.Errorf("scheduler: job %s interval must be > 0", def.Name)
		}
		initial = InitialIntervalFire(now, def.IntervalMs)
	case store.ScheduleDaily:
		tz := time.UTC
		if def.Timezone != "" {
			loc, err := time.LoadLocation(def.Timezone)
			if err != nil {
				return fmt.Errorf("scheduler: job %s invalid timezone %s: %w", def.Name, def.Timezone, err)
			}
			tz = loc
		}
		if _, _, err := ParseHHMM(def.DailyHHMM); err != nil {
			return fmt.Errorf("scheduler: job %s: %w", def.Name, err)
		}
		next, err := NextFireDaily(def.DailyHHMM, tz, now)
		if err != nil {
			return fmt.Errorf("scheduler: job %s: %w", def.Name, err)
		}
		initial = next
	default:
		return fmt.Errorf("scheduler: job %s has unknown schedule kind %q", def.Name, def.Kind)
	}

	if err := s.repo.UpsertJobDefinition(def.Name, def.Kind, def.IntervalMs, def.DailyHHMM, def.Timezone, def.LeaseMs, initial, now); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[def.Name] = registered{def: def, handler: handler}
	s.mu.Unlock()

	s.log.Info().Str("job", def.Name).Str("kind", string(def.Kind)).Msg("job registered")
	return nil
}

// Start recovers stale leases once, then runs the tick loop until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	now := s.clock.Now()
	recovered, err := s.repo.RecoverStaleLeases(now, "startup lease recovery")
	if err != nil {
		return fmt.Errorf("scheduler: failed to recover stale leases: %w", err)
	}
	if recovered > 0 {
		s.log.Warn().Int64("count", recovered).Msg("recovered stale job leases at startup")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()

	s.log.Info().Dur("tick_interval", s.tickInterval).Msg("scheduler started")
	return nil
}

// Stop cancels the tick loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.tryRunJob(ctx, name)
	}
}

func (s *Scheduler) tryRunJob(ctx context.Context, name string) {
	s.mu.Lock()
	if s.inFlight[name] {
		s.mu.Unlock()
		return
	}
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	now := s.clock.Now()
	acquired, err := s.repo.TryAcquireLease(name, now, job.def.LeaseMs, s.ownerID)
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("lease acquisition failed")
		return
	}
	if !acquired {
		return
	}

	s.mu.Lock()
	s.inFlight[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[name] = false
		s.mu.Unlock()
	}()

	runErr := job.handler.Run(ctx)

	completedAt := s.clock.Now()
	next := s.computeNext(job.def, completedAt)

	if runErr != nil {
		if err := s.repo.MarkFailed(name, next, completedAt, runErr.Error()); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("failed to record job failure")
		}
		s.log.Error().Err(runErr).Str("job", name).Time("next_run_at", next).Msg("job failed")
		return
	}

	if err := s.repo.MarkSuccess(name, next, completedAt); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("failed to record job success")
	}
	s.log.Info().Str("job", name).Time("next_run_at", next).Msg("job completed")
}

func (s *Scheduler) computeNext(def Definition, now time.Time) time.Time {
	switch def.Kind {
	case store.ScheduleInterval:
		return NextFireInterval(now, now, def.IntervalMs)
	case store.ScheduleDaily:
		tz := time.UTC
		if def.Timezone != "" {
			if loc, err := time.LoadLocation(def.Timezone); err == nil {
				tz = loc
			}
		}
		next, err := NextFireDaily(def.DailyHHMM, tz, now)
		if err != nil {
			// Defensive fallback only reachable if an operator edits the
			// stored HH:MM out from under a running process; one day out
			// keeps next_run_at strictly advancing.
			return now.Add(24 * time.Hour)
		}
		return next
	default:
		return now.Add(24 * time.Hour)
	}
}

// ForceRun bypasses the lease/cadence check entirely and runs the handler
// once, for the CLI/HTTP "force scan" surface. It does not touch
// next_run_at bookkeeping.
func (s *Scheduler) ForceRun(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	return job.handler.Run(ctx)
}

// ListJobs returns every persisted job row, for the status/control surface.
func (s *Scheduler) ListJobs() ([]store.JobRow, error) {
	return s.repo.List()
}
