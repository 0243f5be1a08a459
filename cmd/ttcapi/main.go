package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ttctransit-data/internal/api"
	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/discord"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/maintenance"
	"github.com/ttctransit-data/internal/common/metrics"
	gtfs_realtime "github.com/ttctransit-data/internal/gtfs-realtime"
	"github.com/ttctransit-data/internal/gtfs-static/scraper"
	"github.com/ttctransit-data/internal/gtfs-static/serviceday"
	"github.com/ttctransit-data/internal/gtfs-static/store"
)

func main() {
	// A .env file is optional; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		loggerConfig.File = true
		loggerConfig.FilePath = cfg.Logging.FilePath
	}
	log := logger.NewFromConfig(loggerConfig)

	log.Info("TTC transit data service starting",
		"log_level", cfg.Logging.Level,
		"db_driver", cfg.Database.Driver,
		"static_url", cfg.GTFSStatic.URL,
		"realtime_url", cfg.GTFSRealtime.RedactedURL(),
		"timezone", cfg.Timezone)

	database, err := db.New(db.Driver(cfg.Database.Driver), cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to prepare schema", "error", err)
	}

	m := metrics.NewCollector()
	loc := cfg.Location()

	schedule := store.New(database, log)
	resolver := serviceday.NewResolver(schedule, log)
	realtime := gtfs_realtime.NewManager(cfg.GTFSRealtime, loc, schedule, log, m)

	cleanupCfg := maintenance.DefaultSchedulerConfig()
	cleanupCfg.KeepInactiveVersions = cfg.GTFSStatic.KeepInactiveVersions
	cleanup := maintenance.NewCleanupScheduler(database, log, cleanupCfg)
	if err := cleanup.Start(ctx); err != nil {
		log.Fatal("Failed to start cleanup scheduler", "error", err)
	}

	var wg sync.WaitGroup

	if cfg.GTFSStatic.URL != "" {
		gtfsScheduler := scraper.NewScheduler(scraper.Config{
			URL:           cfg.GTFSStatic.URL,
			CheckInterval: cfg.GTFSStatic.CheckInterval,
			DownloadDir:   cfg.GTFSStatic.DownloadDir,
		}, database, cleanup, discord.NewClient(cfg.Logging.DiscordURL), m, log)

		wg.Add(1)
		go func(s *scraper.GTFSScheduler) {
			defer wg.Done()
			if err := s.Start(ctx); err != nil {
				log.Error("GTFS-Static scheduler error", "error", err)
			}
		}(gtfsScheduler)
	} else {
		log.Info("GTFS-Static scheduler disabled (no bundle URL configured)")
	}

	server := api.NewServer(api.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Location:       loc,
	}, schedule, resolver, realtime, database, m, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	cleanup.Stop()
	wg.Wait()

	log.Info("TTC transit data service stopped")
}
