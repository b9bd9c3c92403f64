// Package scheduler drives the coordinator on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/coordinator"
)

// Jobs is what the scheduler invokes; satisfied by the coordinator.
type Jobs interface {
	RunCycle(ctx context.Context) coordinator.CycleResult
	Cleanup(ctx context.Context) int
}

// Config holds the cron specs for the two recurring jobs.
type Config struct {
	PollSpec    string // e.g. "@every 1m"
	CleanupSpec string // e.g. "0 3 * * *"
	Location    *time.Location
}

// Scheduler owns the cron runner. Ticks are serialized with a mutex so a
// slow cycle never overlaps the next one.
type Scheduler struct {
	c      *cron.Cron
	jobs   Jobs
	logger *zap.Logger

	tickMu sync.Mutex
}

// New builds a scheduler; Start registers the jobs and begins ticking.
func New(jobs Jobs, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger,
	}
}

// Start registers the polling and cleanup jobs and starts the cron runner.
func (s *Scheduler) Start(cfg Config) error {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	s.c = cron.New(cron.WithLocation(loc))

	if _, err := s.c.AddFunc(cfg.PollSpec, s.tick); err != nil {
		return fmt.Errorf("invalid poll spec %q: %w", cfg.PollSpec, err)
	}
	if _, err := s.c.AddFunc(cfg.CleanupSpec, s.cleanup); err != nil {
		return fmt.Errorf("invalid cleanup spec %q: %w", cfg.CleanupSpec, err)
	}

	s.c.Start()
	s.logger.Info("scheduler started",
		zap.String("poll_spec", cfg.PollSpec),
		zap.String("cleanup_spec", cfg.CleanupSpec),
	)
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.c == nil {
		return
	}
	ctx := s.c.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	result := s.jobs.RunCycle(context.Background())
	s.logger.Debug("scheduled cycle finished",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
}

func (s *Scheduler) cleanup() {
	removed := s.jobs.Cleanup(context.Background())
	s.logger.Debug("scheduled cleanup finished", zap.Int("removed", removed))
}
