package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-static/gtfstest"
)

func importGenerations(t *testing.T, n int) *db.DB {
	t.Helper()
	database := gtfstest.NewDB(t)
	for i := 0; i < n; i++ {
		gtfstest.ImportActive(t, database, gtfstest.SampleFeed)
	}
	return database
}

func versionIDs(t *testing.T, database *db.DB, table string) []int {
	t.Helper()
	rows, err := database.QueryContext(context.Background(),
		`SELECT DISTINCT version_id FROM `+table+` ORDER BY version_id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPruneGenerations(t *testing.T) {
	tests := []struct {
		name        string
		keep        int
		wantDeleted []int
		wantLeft    []int
	}{
		{"keep one", 1, []int{2, 1}, []int{3, 4}},
		{"keep none", 0, []int{3, 2, 1}, []int{4}},
		{"keep more than exist", 5, nil, []int{1, 2, 3, 4}},
		{"negative keep", -1, []int{3, 2, 1}, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := importGenerations(t, 4)
			m := New(database, logger.Nop())

			results, err := m.PruneGenerations(context.Background(), tt.keep)
			if err != nil {
				t.Fatalf("PruneGenerations() error = %v", err)
			}

			var deleted []int
			for _, r := range results {
				deleted = append(deleted, r.VersionID)
				if r.RowsDeleted == 0 {
					t.Errorf("version %d reported no rows deleted", r.VersionID)
				}
			}
			if !equalInts(deleted, tt.wantDeleted) {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}

			if got := versionIDs(t, database, "feed_versions"); !equalInts(got, tt.wantLeft) {
				t.Errorf("feed_versions = %v, want %v", got, tt.wantLeft)
			}
			for _, table := range db.VersionedTables {
				if got := versionIDs(t, database, table); !equalInts(got, tt.wantLeft) {
					t.Errorf("%s versions = %v, want %v", table, got, tt.wantLeft)
				}
			}
		})
	}
}

func TestPruneKeepsActiveGeneration(t *testing.T) {
	database := importGenerations(t, 3)
	ctx := context.Background()

	// Roll back to the first generation; it must survive a prune.
	vc := db.NewVersionChecker(database)
	if err := vc.ActivateVersion(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := New(database, logger.Nop()).PruneGenerations(ctx, 0); err != nil {
		t.Fatal(err)
	}

	if got := versionIDs(t, database, "feed_versions"); !equalInts(got, []int{1}) {
		t.Errorf("feed_versions = %v, want [1]", got)
	}
	active, err := vc.GetActiveVersion(ctx)
	if err != nil || active == nil || active.VersionID != 1 {
		t.Errorf("active = %+v, %v; want version 1", active, err)
	}
}

func TestSchedulerImportLock(t *testing.T) {
	database := importGenerations(t, 3)
	s := NewCleanupScheduler(database, logger.Nop(), SchedulerConfig{
		Interval:             time.Hour,
		KeepInactiveVersions: 0,
	})

	s.LockForImport()
	if _, err := s.TriggerCleanup(context.Background()); err == nil {
		t.Error("TriggerCleanup() during import succeeded, want error")
	}
	if !s.GetStatus().IsImportInProgress {
		t.Error("status does not report import in progress")
	}
	s.UnlockAfterImport()

	results, err := s.TriggerCleanup(context.Background())
	if err != nil {
		t.Fatalf("TriggerCleanup() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("deleted %d versions, want 2", len(results))
	}
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	database := importGenerations(t, 3)
	s := NewCleanupScheduler(database, logger.Nop(), SchedulerConfig{
		Interval:             time.Hour,
		InitialDelay:         10 * time.Millisecond,
		KeepInactiveVersions: 0,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := versionIDs(t, database, "feed_versions"); equalInts(got, []int{3}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled cleanup did not run")
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler still running after Stop()")
	}
}
