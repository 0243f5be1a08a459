package scraper

import (
	"context"

	"github.com/ttctransit-data/internal/common/discord"
	"github.com/ttctransit-data/internal/common/maintenance"
	"github.com/ttctransit-data/internal/gtfs-static/importer"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string) (*models.FeedMetadata, error)
}

type VersionChecker interface {
	HasNewerVersion(ctx context.Context, meta models.FeedMetadata) (bool, error)
	CreateNewVersion(ctx context.Context, versionName, sourceURL string) (int, error)
	ActivateVersion(ctx context.Context, versionID int) error
}

type Downloader interface {
	Download(ctx context.Context, url string, destPath string) error
}

type Importer interface {
	Import(ctx context.Context, versionID int, filePath string) (importer.Stats, error)
}

// Pruner removes old generations once a new one is active. It is told about
// imports so a periodic cleanup never races one.
type Pruner interface {
	LockForImport()
	UnlockAfterImport()
	TriggerCleanup(ctx context.Context) ([]maintenance.PruneResult, error)
}

type Notifier interface {
	NotifyImport(ctx context.Context, report discord.ImportReport) error
}

type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}
