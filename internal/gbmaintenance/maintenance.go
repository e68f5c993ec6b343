// Package gbmaintenance runs a cron-scheduled sweep over the resource
// registry, reclaiming resources whose last reference was dropped without
// an explicit Release, and logs the resource registry's counters. Grounded on
// ternarybob-quaero/internal/services/scheduler/scheduler_service.go's
// robfig/cron wrapping (cron.New, AddFunc, panic recovery around the
// handler, Stop draining in-flight runs), adapted to submit each tick as an
// ordinary job on the fiber scheduler instead of running inline.
package gbmaintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fiberforge/internal/gbjob"
)

var logger = arbor.NewLogger()

// Sweeper is the subset of *gbresource.System the maintenance loop needs.
type Sweeper interface {
	Sweep() int
	Stats() (live int, visible int)
}

// Service runs a single cron-scheduled sweep job against a resource system,
// submitting each tick through a job scheduler so the sweep itself is an
// ordinary cooperatively-scheduled job rather than work done on cron's own
// goroutine.
type Service struct {
	jobs      *gbjob.System
	resources Sweeper
	cron      *cron.Cron

	mu        sync.Mutex
	running   bool
	lastSweep time.Time
	lastCount int
}

// NewService constructs a Service. Nothing runs until Start is called.
func NewService(jobs *gbjob.System, resources Sweeper) *Service {
	return &Service{
		jobs:      jobs,
		resources: resources,
		cron:      cron.New(),
	}
}

// Start registers the sweep under schedule (a standard 5-field cron
// expression, or a descriptor such as "@every 1m") and begins running it.
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("gbmaintenance: already running")
	}
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(schedule, s.triggerSweep); err != nil {
		return fmt.Errorf("gbmaintenance: invalid schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	logger.Info().Str("schedule", schedule).Msg("gbmaintenance: sweep scheduled")
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight cron trigger to
// return. A trigger only submits the sweep job, so a sweep already running
// in the job system is not waited for.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info().Msg("gbmaintenance: stopped")
}

// TriggerNow submits one sweep to the job system immediately, outside the
// cron schedule; it returns without waiting for the sweep to run.
func (s *Service) TriggerNow() {
	s.triggerSweep()
}

// LastSweep reports when the most recent sweep ran and how many resources
// it deleted.
func (s *Service) LastSweep() (at time.Time, deleted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastCount
}

func (s *Service) triggerSweep() {
	ok := s.jobs.Run(s.runSweep, gbjob.WithName("gbmaintenance.sweep"))
	if !ok {
		logger.Warn().Msg("gbmaintenance: job system refused sweep submission (shutting down?)")
	}
}

func (s *Service) runSweep(ctx context.Context) {
	traceID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("trace_id", traceID).Interface("panic", r).Msg("gbmaintenance: recovered from panic in sweep")
		}
	}()

	start := time.Now()
	live, visible := s.resources.Stats()
	deleted := s.resources.Sweep()

	s.mu.Lock()
	s.lastSweep = start
	s.lastCount = deleted
	s.mu.Unlock()

	logger.Debug().
		Str("trace_id", traceID).
		Int("live_before", live).
		Int("visible_before", visible).
		Int("deleted", deleted).
		Dur("duration", time.Since(start)).
		Msg("gbmaintenance: sweep completed")
}
