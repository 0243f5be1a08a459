package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

type VersionChecker struct {
	db *DB
}

func NewVersionChecker(db *DB) *VersionChecker {
	return &VersionChecker{db: db}
}

func (vc *VersionChecker) GetActiveVersion(ctx context.Context) (*models.VersionInfo, error) {
	query := `
		SELECT version_id, version_name, COALESCE(source_url, ''), created_at, is_active
		FROM feed_versions
		WHERE is_active = 1
		LIMIT 1
	`

	version, err := scanVersion(vc.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		vc.db.logger.Info("No active version found in database")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active version: %w", err)
	}

	vc.db.logger.Debug("Found active version",
		"version_id", version.VersionID,
		"version_name", version.VersionName)

	return version, nil
}

// ListVersions returns every generation, newest first.
func (vc *VersionChecker) ListVersions(ctx context.Context) ([]models.VersionInfo, error) {
	rows, err := vc.db.QueryContext(ctx, `
		SELECT version_id, version_name, COALESCE(source_url, ''), created_at, is_active
		FROM feed_versions
		ORDER BY version_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []models.VersionInfo
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// HasNewerVersion reports whether a bundle identified by its metadata differs
// from the one the active generation was built from.
func (vc *VersionChecker) HasNewerVersion(ctx context.Context, meta models.FeedMetadata) (bool, error) {
	activeVersion, err := vc.GetActiveVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("getting active version: %w", err)
	}

	if activeVersion == nil {
		vc.db.logger.Info("No active version found, new import needed")
		return true, nil
	}

	isNewer := activeVersion.VersionName != meta.VersionName()

	vc.db.logger.Info("Version comparison",
		"dataset_version", meta.VersionName(),
		"active_version", activeVersion.VersionName,
		"is_newer", isNewer)

	return isNewer, nil
}

// CreateNewVersion registers an inactive generation and returns its id.
func (vc *VersionChecker) CreateNewVersion(ctx context.Context, versionName, sourceURL string) (int, error) {
	tx, err := vc.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var versionID int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version_id), 0) + 1 FROM feed_versions").Scan(&versionID); err != nil {
		return 0, fmt.Errorf("allocating version id: %w", err)
	}

	_, err = tx.ExecContext(ctx, vc.db.Rebind(`
		INSERT INTO feed_versions (version_id, version_name, source_url, created_at, is_active)
		VALUES (?, ?, ?, ?, 0)
	`), versionID, versionName, sourceURL, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("creating version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	vc.db.logger.Info("Created new version",
		"version_id", versionID,
		"version_name", versionName)

	return versionID, nil
}

// ActivateVersion makes versionID the served generation in a single transaction.
func (vc *VersionChecker) ActivateVersion(ctx context.Context, versionID int) error {
	tx, err := vc.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "UPDATE feed_versions SET is_active = 0 WHERE is_active = 1")
	if err != nil {
		return fmt.Errorf("deactivating versions: %w", err)
	}

	result, err := tx.ExecContext(ctx, vc.db.Rebind("UPDATE feed_versions SET is_active = 1 WHERE version_id = ?"), versionID)
	if err != nil {
		return fmt.Errorf("activating version: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("version %d not found", versionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	vc.db.logger.Info("Activated version", "version_id", versionID)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*models.VersionInfo, error) {
	var (
		v         models.VersionInfo
		createdAt string
		active    int
	)
	if err := row.Scan(&v.VersionID, &v.VersionName, &v.SourceURL, &createdAt, &active); err != nil {
		return nil, err
	}
	v.IsActive = active == 1
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		v.CreatedAt = t
	}
	return &v, nil
}
