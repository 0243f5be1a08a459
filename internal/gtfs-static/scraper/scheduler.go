package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/discord"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"github.com/ttctransit-data/internal/gtfs-static/importer"
)

type GTFSScheduler struct {
	config          Config
	metadataFetcher MetadataFetcher
	versionChecker  VersionChecker
	downloader      Downloader
	importer        Importer
	pruner          Pruner
	notifier        Notifier
	metrics         *metrics.Collector
	logger          logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

type Config struct {
	URL           string
	CheckInterval time.Duration
	DownloadDir   string
}

// RunResult describes one check of the bundle URL.
type RunResult struct {
	RunID       string
	Skipped     bool
	VersionID   int
	VersionName string
	Stats       importer.Stats
	Pruned      int
}

// NewScheduler wires the HTTP fetchers and the database importer. pruner and
// notifier may be nil.
func NewScheduler(
	config Config,
	database *db.DB,
	pruner Pruner,
	notifier Notifier,
	m *metrics.Collector,
	logger logger.Logger,
) *GTFSScheduler {
	log := logger.With("component", "gtfs_scheduler")
	return &GTFSScheduler{
		config:          config,
		metadataFetcher: NewHTTPMetadataFetcher(log),
		versionChecker:  db.NewVersionChecker(database),
		downloader:      NewHTTPDownloader(log),
		importer:        dbImporter{db: database},
		pruner:          pruner,
		notifier:        notifier,
		metrics:         m,
		logger:          log,
	}
}

// Start checks immediately and then every CheckInterval. It blocks until ctx
// is cancelled or Stop is called.
func (s *GTFSScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	if s.config.CheckInterval <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("check interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting GTFS scheduler",
		"url", s.config.URL,
		"check_interval", s.config.CheckInterval)

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Initial check failed", "error", err)
	}

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduled check failed", "error", err)
			}
		}
	}
}

func (s *GTFSScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}

	if s.cancel != nil {
		s.cancel()
	}

	return nil
}

// RunOnce imports the bundle if it changed since the active generation was
// built. A failed import leaves its generation inactive.
func (s *GTFSScheduler) RunOnce(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	log := s.logger.With("run_id", result.RunID)

	err := s.checkAndUpdate(ctx, log, result)
	switch {
	case err != nil:
		s.metrics.ImportFinished("failed", 0)
	case result.Skipped:
		s.metrics.ImportFinished("skipped", 0)
		return result, nil
	default:
		s.metrics.ImportFinished("imported", result.VersionID)
	}

	if s.notifier != nil {
		report := discord.ImportReport{
			RunID:       result.RunID,
			VersionID:   result.VersionID,
			VersionName: result.VersionName,
			SourceURL:   s.config.URL,
			Rows:        result.Stats,
			Pruned:      result.Pruned,
			Duration:    time.Since(start),
			Err:         err,
		}
		if nerr := s.notifier.NotifyImport(ctx, report); nerr != nil {
			log.Warn("Failed to send import notification", "error", nerr)
		}
	}

	return result, err
}

func (s *GTFSScheduler) checkAndUpdate(ctx context.Context, log logger.Logger, result *RunResult) error {
	log.Debug("Checking for GTFS updates", "url", s.config.URL)

	metadata, err := s.metadataFetcher.FetchMetadata(ctx, s.config.URL)
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}

	hasNewer, err := s.versionChecker.HasNewerVersion(ctx, *metadata)
	if err != nil {
		return fmt.Errorf("checking version: %w", err)
	}
	if !hasNewer {
		log.Debug("No new version available")
		result.Skipped = true
		return nil
	}

	versionName := metadata.VersionName()
	result.VersionName = versionName
	log.Info("New version detected, starting import process",
		"version_name", versionName,
		"last_modified", metadata.LastModified)

	downloadPath := filepath.Join(s.config.DownloadDir, fmt.Sprintf("gtfs_%s.zip", result.RunID))
	if err := s.downloader.Download(ctx, metadata.URL, downloadPath); err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	defer os.Remove(downloadPath)

	if err := s.importAndActivate(ctx, log, versionName, metadata.URL, downloadPath, result); err != nil {
		return err
	}

	if s.pruner != nil {
		pruned, err := s.pruner.TriggerCleanup(ctx)
		if err != nil {
			log.Warn("Pruning old versions failed", "error", err)
		}
		result.Pruned = len(pruned)
	}

	return nil
}

func (s *GTFSScheduler) importAndActivate(ctx context.Context, log logger.Logger, versionName, sourceURL, path string, result *RunResult) error {
	if s.pruner != nil {
		s.pruner.LockForImport()
		defer s.pruner.UnlockAfterImport()
	}

	versionID, err := s.versionChecker.CreateNewVersion(ctx, versionName, sourceURL)
	if err != nil {
		return fmt.Errorf("creating version: %w", err)
	}
	result.VersionID = versionID

	stats, err := s.importer.Import(ctx, versionID, path)
	if err != nil {
		log.Error("Import failed, version will remain inactive",
			"version_id", versionID,
			"error", err)
		return fmt.Errorf("importing data: %w", err)
	}
	result.Stats = stats

	if err := s.versionChecker.ActivateVersion(ctx, versionID); err != nil {
		return fmt.Errorf("activating version: %w", err)
	}

	log.Info("Successfully imported and activated new GTFS data",
		"version_id", versionID,
		"version_name", versionName,
		"rows", stats.Total())

	return nil
}

type dbImporter struct {
	db *db.DB
}

func (i dbImporter) Import(ctx context.Context, versionID int, path string) (importer.Stats, error) {
	return importer.NewImporter(i.db, versionID).Import(ctx, path)
}
