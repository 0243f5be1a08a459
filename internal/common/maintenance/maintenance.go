package maintenance

import (
	"context"
	"fmt"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
)

// PruneResult describes one deleted schedule generation.
type PruneResult struct {
	VersionID   int    `json:"version_id"`
	VersionName string `json:"version_name"`
	RowsDeleted int64  `json:"rows_deleted"`
}

// Maintenance handles database cleanup and maintenance operations
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger.With("component", "maintenance"),
	}
}

// PruneGenerations deletes every inactive generation except the keep most
// recent ones. The active generation is never touched. Each generation is
// removed in its own transaction.
func (m *Maintenance) PruneGenerations(ctx context.Context, keep int) ([]PruneResult, error) {
	if keep < 0 {
		keep = 0
	}
	m.logger.Info("Starting cleanup of old GTFS versions", "keep_inactive_versions", keep)

	rows, err := m.db.QueryContext(ctx, `
		SELECT version_id, version_name
		FROM feed_versions
		WHERE is_active = 0
		ORDER BY version_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing inactive versions: %w", err)
	}

	var candidates []PruneResult
	for rows.Next() {
		var r PruneResult
		if err := rows.Scan(&r.VersionID, &r.VersionName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		candidates = append(candidates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}

	if len(candidates) <= keep {
		m.logger.Debug("No GTFS versions to clean up", "inactive", len(candidates))
		return nil, nil
	}

	var results []PruneResult
	for _, r := range candidates[keep:] {
		deleted, err := m.deleteGeneration(ctx, r.VersionID)
		if err != nil {
			return results, fmt.Errorf("deleting version %d: %w", r.VersionID, err)
		}
		r.RowsDeleted = deleted
		results = append(results, r)

		m.logger.Info("Cleaned up GTFS version",
			"version_id", r.VersionID,
			"version_name", r.VersionName,
			"records_deleted", r.RowsDeleted)
	}

	if err := m.Optimize(ctx); err != nil {
		m.logger.Warn("Failed to optimize database after cleanup", "error", err)
	}

	return results, nil
}

func (m *Maintenance) deleteGeneration(ctx context.Context, versionID int) (int64, error) {
	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// is_active is re-checked so a generation activated meanwhile survives.
	res, err := tx.ExecContext(ctx, m.db.Rebind(
		`DELETE FROM feed_versions WHERE version_id = ? AND is_active = 0`), versionID)
	if err != nil {
		return 0, fmt.Errorf("deleting feed_versions row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}

	var total int64
	for _, table := range db.VersionedTables {
		res, err := tx.ExecContext(ctx, m.db.Rebind(
			`DELETE FROM `+table+` WHERE version_id = ?`), versionID)
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return total, nil
}

// Optimize refreshes planner statistics after large deletes. It must run
// outside a transaction.
func (m *Maintenance) Optimize(ctx context.Context) error {
	if m.db.Driver() == db.SQLite {
		if _, err := m.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
			return fmt.Errorf("optimizing sqlite: %w", err)
		}
		return nil
	}

	for _, table := range db.VersionedTables {
		if _, err := m.db.ExecContext(ctx, `ANALYZE `+table); err != nil {
			return fmt.Errorf("analyzing %s: %w", table, err)
		}
	}
	return nil
}
