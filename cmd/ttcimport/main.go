package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/maintenance"
	"github.com/ttctransit-data/internal/gtfs-static/importer"
)

func main() {
	zipPath := flag.String("zip", "data/gtfs.zip", "Path to the GTFS zip bundle")
	name := flag.String("name", "", "Version name recorded for this import (default: file name and time)")
	keep := flag.Int("keep", -1, "Inactive versions to keep after activation (default: from config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Logging.Level)
	log := logger.NewFromConfig(loggerConfig).With("component", "ttcimport")

	if _, err := os.Stat(*zipPath); err != nil {
		log.Fatal("GTFS bundle not readable", "path", *zipPath, "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.New(db.Driver(cfg.Database.Driver), cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to prepare schema", "error", err)
	}

	versionName := *name
	if versionName == "" {
		versionName = "file:" + filepath.Base(*zipPath) + "@" + time.Now().UTC().Format(time.RFC3339)
	}

	start := time.Now()
	vc := db.NewVersionChecker(database)
	versionID, err := vc.CreateNewVersion(ctx, versionName, *zipPath)
	if err != nil {
		log.Fatal("Failed to create version", "error", err)
	}

	stats, err := importer.NewImporter(database, versionID).Import(ctx, *zipPath)
	if err != nil {
		log.Fatal("Import failed, version left inactive", "version_id", versionID, "error", err)
	}
	if err := vc.ActivateVersion(ctx, versionID); err != nil {
		log.Fatal("Failed to activate version", "version_id", versionID, "error", err)
	}

	for table, rows := range stats {
		log.Info("Imported table", "table", table, "rows", rows)
	}

	keepInactive := cfg.GTFSStatic.KeepInactiveVersions
	if *keep >= 0 {
		keepInactive = *keep
	}
	m := maintenance.New(database, log)
	pruned, err := m.PruneGenerations(ctx, keepInactive)
	if err != nil {
		log.Error("Pruning old versions failed", "error", err)
	}
	if err := m.Optimize(ctx); err != nil {
		log.Warn("Optimize failed", "error", err)
	}

	log.Info("GTFS import complete",
		"version_id", versionID,
		"version_name", versionName,
		"rows", stats.Total(),
		"pruned_versions", len(pruned),
		"duration", time.Since(start))
}
