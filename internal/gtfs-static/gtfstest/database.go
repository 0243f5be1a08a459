package gtfstest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-static/importer"
)

// NewDB opens an empty SQLite database with the schedule schema.
func NewDB(t testing.TB) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gtfs.sqlite")
	database, err := db.New(db.SQLite, "file:"+path+"?_pragma=busy_timeout(5000)", logger.Nop())
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return database
}

// ImportActive imports files as a new generation and activates it.
func ImportActive(t testing.TB, database *db.DB, files map[string]string) int {
	t.Helper()
	ctx := context.Background()

	vc := db.NewVersionChecker(database)
	versionID, err := vc.CreateNewVersion(ctx, "test", "")
	if err != nil {
		t.Fatalf("creating version: %v", err)
	}
	if _, err := importer.NewImporter(database, versionID).Import(ctx, WriteZip(t, files)); err != nil {
		t.Fatalf("importing: %v", err)
	}
	if err := vc.ActivateVersion(ctx, versionID); err != nil {
		t.Fatalf("activating: %v", err)
	}
	return versionID
}

// SampleDB returns a database holding SampleFeed as the active generation.
func SampleDB(t testing.TB) *db.DB {
	t.Helper()
	database := NewDB(t)
	ImportActive(t, database, SampleFeed)
	return database
}
