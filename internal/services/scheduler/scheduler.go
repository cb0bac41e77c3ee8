package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/services/reconcile"
)

// Service runs the periodic sweeps: forcing TIMEOUT on jobs past the
// absolute age ceiling, and reclaiming expired finalization leases left
// behind by crashed holders.
type Service struct {
	jobs      interfaces.JobStorage
	locks     interfaces.LockStorage
	engine    *reconcile.Engine
	cron      *cron.Cron
	logger    arbor.ILogger
	maxJobAge time.Duration

	mu      sync.Mutex
	running bool
}

// NewService creates the sweep scheduler.
func NewService(storage interfaces.StorageManager, engine *reconcile.Engine, maxJobAge time.Duration, logger arbor.ILogger) *Service {
	if maxJobAge <= 0 {
		maxJobAge = 24 * time.Hour
	}
	return &Service{
		jobs:      storage.JobStorage(),
		locks:     storage.LockStorage(),
		engine:    engine,
		cron:      cron.New(),
		logger:    logger,
		maxJobAge: maxJobAge,
	}
}

// Start registers the sweeps on the given cron expression and begins
// the scheduler.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runSweeps); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Str("max_job_age", s.maxJobAge.String()).
		Msg("Sweep scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Sweep scheduler stopped")
}

func (s *Service) runSweeps() {
	ctx := context.Background()
	s.SweepTimeouts(ctx)
	s.SweepExpiredLocks(ctx)
}

// SweepTimeouts forces TIMEOUT on every non-terminal job older than the
// age ceiling. Catches jobs the poller can no longer reach (exhausted
// scheduling, lost external IDs, clock skew).
func (s *Service) SweepTimeouts(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxJobAge)
	stale, err := s.jobs.GetNonTerminalOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Timeout sweep query failed")
		return
	}

	for _, job := range stale {
		if err := s.engine.Timeout(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to time out stale job")
		}
	}

	if len(stale) > 0 {
		s.logger.Info().Int("count", len(stale)).Msg("Timeout sweep completed")
	}
}

// SweepExpiredLocks reclaims finalization leases whose holders died
// before releasing.
func (s *Service) SweepExpiredLocks(ctx context.Context) {
	reclaimed, err := s.locks.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Lock sweep failed")
		return
	}
	if reclaimed > 0 {
		s.logger.Info().Int("count", reclaimed).Msg("Expired finalization leases reclaimed")
	}
}
