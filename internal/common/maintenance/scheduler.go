package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
)

// CleanupScheduler prunes old schedule generations periodically
type CleanupScheduler struct {
	maintenance        *Maintenance
	logger             logger.Logger
	config             SchedulerConfig
	isRunning          bool
	mu                 sync.RWMutex
	cancelFn           context.CancelFunc
	done               chan struct{}
	importLock         sync.RWMutex // Prevents cleanup during GTFS imports
	isImportInProgress bool
}

type SchedulerConfig struct {
	Interval             time.Duration
	InitialDelay         time.Duration // first run after startup, leaving room for a startup import
	KeepInactiveVersions int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:             24 * time.Hour,
		InitialDelay:         5 * time.Minute,
		KeepInactiveVersions: 1,
	}
}

func NewCleanupScheduler(database *db.DB, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: New(database, logger),
		logger:      logger.With("component", "cleanup_scheduler"),
		config:      config,
	}
}

func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}
	if s.config.Interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("Starting cleanup scheduler",
		"interval", s.config.Interval,
		"keep_inactive_versions", s.config.KeepInactiveVersions)

	go s.loop(ctx, s.done)

	return nil
}

// Stop cancels the loop and waits for a running cleanup to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Stopping cleanup scheduler")
	s.cancelFn()
	done := s.done
	s.isRunning = false
	s.mu.Unlock()

	<-done
	s.logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LockForImport prevents cleanup operations during GTFS imports
func (s *CleanupScheduler) LockForImport() {
	s.importLock.Lock()
	s.isImportInProgress = true
	s.importLock.Unlock()
	s.logger.Debug("Cleanup operations locked for GTFS import")
}

func (s *CleanupScheduler) UnlockAfterImport() {
	s.importLock.Lock()
	s.isImportInProgress = false
	s.importLock.Unlock()
	s.logger.Debug("Cleanup operations unlocked after GTFS import")
}

func (s *CleanupScheduler) canPerformCleanup() bool {
	s.importLock.RLock()
	defer s.importLock.RUnlock()
	return !s.isImportInProgress
}

func (s *CleanupScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(s.config.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initialDelay.C:
			s.performCleanup(ctx)
		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) {
	if !s.canPerformCleanup() {
		s.logger.Debug("Skipping cleanup - GTFS import in progress")
		return
	}

	start := time.Now()
	results, err := s.maintenance.PruneGenerations(ctx, s.config.KeepInactiveVersions)
	if err != nil {
		s.logger.Error("GTFS version cleanup failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("GTFS version cleanup completed",
		"duration", time.Since(start),
		"versions_deleted", len(results))
}

// TriggerCleanup prunes now unless an import holds the lock.
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) ([]PruneResult, error) {
	if !s.canPerformCleanup() {
		return nil, fmt.Errorf("cannot perform cleanup - GTFS import in progress")
	}
	return s.maintenance.PruneGenerations(ctx, s.config.KeepInactiveVersions)
}

type Status struct {
	IsRunning            bool   `json:"is_running"`
	IsImportInProgress   bool   `json:"is_import_in_progress"`
	Interval             string `json:"interval"`
	KeepInactiveVersions int    `json:"keep_inactive_versions"`
}

func (s *CleanupScheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		IsRunning:            s.isRunning,
		IsImportInProgress:   !s.canPerformCleanup(),
		Interval:             s.config.Interval.String(),
		KeepInactiveVersions: s.config.KeepInactiveVersions,
	}
}
