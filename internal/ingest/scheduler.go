package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic platform syncs from a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	spec   string
	logger *slog.Logger
}

// NewScheduler creates a Scheduler. An empty spec disables scheduling.
func NewScheduler(syncer *Syncer, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		syncer: syncer,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info("Scheduled sync disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.syncer.SyncAll(ctx); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Warn("Skipping scheduled sync, previous run still active")
				return
			}
			s.logger.Error("Scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("registering sync schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("Scheduled sync enabled", "cron", s.spec)
	return nil
}

// Stop stops the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
