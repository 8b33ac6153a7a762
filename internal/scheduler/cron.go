package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/config"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/syncer"
)

// Scheduler drives the periodic sync timers
type Scheduler struct {
	cron   *cron.Cron
	orch   *syncer.Orchestrator
	db     *models.Database
	cfg    *config.Config
	logger *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(orch *syncer.Orchestrator, db *models.Database, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		orch:   orch,
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the three interval timers and, when any connection is
// configured, runs an initial full sync
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	jobs := []struct {
		spec string
		kind syncer.SyncKind
	}{
		{fmt.Sprintf("@every %dm", s.cfg.HistorySyncMinutes), syncer.KindHistory},
		{fmt.Sprintf("@every %dm", s.cfg.MetadataSyncMinutes), syncer.KindMetadata},
		{fmt.Sprintf("@every %dm", s.cfg.PlaybackSyncMinutes), syncer.KindPlayback},
	}

	for _, job := range jobs {
		kind := job.kind
		_, err := s.cron.AddFunc(job.spec, func() {
			s.runSync(kind)
		})
		if err != nil {
			return fmt.Errorf("failed to add %s job: %w", kind, err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"history_minutes":  s.cfg.HistorySyncMinutes,
		"metadata_minutes": s.cfg.MetadataSyncMinutes,
		"playback_minutes": s.cfg.PlaybackSyncMinutes,
	}).Info("Scheduler started")

	// Run an initial full sync once at startup if any connection exists
	conns, err := s.db.GetEnabledConnections()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list connections for initial sync")
		return nil
	}
	if len(conns) > 0 {
		s.logger.Info("Running initial full sync")
		go s.runSync(syncer.KindFull)
	}

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runSync executes one timed sync cycle; an overlapping cycle is dropped
func (s *Scheduler) runSync(kind syncer.SyncKind) {
	s.logger.WithField("kind", kind).Info("Running scheduled sync")

	err := s.orch.Run(context.Background(), kind)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		// Already logged by the orchestrator; nothing to retry
	case err != nil:
		s.logger.WithError(err).WithField("kind", kind).Error("Sync job failed")
	default:
		s.logger.WithField("kind", kind).Info("Sync job completed")
	}
}

// Jobs describes the registered timers for the status endpoint
func (s *Scheduler) Jobs() map[string]string {
	return map[string]string{
		"history":  fmt.Sprintf("every %dm", s.cfg.HistorySyncMinutes),
		"metadata": fmt.Sprintf("every %dm", s.cfg.MetadataSyncMinutes),
		"playback": fmt.Sprintf("every %dm", s.cfg.PlaybackSyncMinutes),
	}
}
