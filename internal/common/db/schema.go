package db

import (
	"context"
	"fmt"
)

// Column types are chosen to be valid in both Postgres and SQLite. Dates are
// stored as YYYYMMDD text and clock times as the raw GTFS HH:MM:SS text.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feed_versions (
		version_id   INTEGER PRIMARY KEY,
		version_name TEXT NOT NULL,
		source_url   TEXT,
		created_at   TEXT NOT NULL,
		is_active    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS agency (
		version_id      INTEGER NOT NULL,
		agency_id       TEXT NOT NULL,
		agency_name     TEXT NOT NULL,
		agency_url      TEXT,
		agency_timezone TEXT NOT NULL,
		agency_lang     TEXT,
		agency_fare_url TEXT,
		PRIMARY KEY (version_id, agency_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stops (
		version_id     INTEGER NOT NULL,
		stop_id        TEXT NOT NULL,
		stop_name      TEXT NOT NULL,
		stop_lat       DOUBLE PRECISION,
		stop_lon       DOUBLE PRECISION,
		location_type  INTEGER,
		parent_station TEXT,
		PRIMARY KEY (version_id, stop_id)
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		version_id       INTEGER NOT NULL,
		route_id         TEXT NOT NULL,
		agency_id        TEXT,
		route_short_name TEXT,
		route_long_name  TEXT,
		route_type       INTEGER,
		route_color      TEXT,
		route_text_color TEXT,
		PRIMARY KEY (version_id, route_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trips (
		version_id    INTEGER NOT NULL,
		trip_id       TEXT NOT NULL,
		route_id      TEXT NOT NULL,
		service_id    TEXT,
		trip_headsign TEXT,
		direction_id  INTEGER,
		PRIMARY KEY (version_id, trip_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stop_times (
		version_id     INTEGER NOT NULL,
		trip_id        TEXT NOT NULL,
		stop_id        TEXT NOT NULL,
		stop_sequence  INTEGER NOT NULL,
		arrival_time   TEXT,
		departure_time TEXT,
		pickup_type    INTEGER,
		drop_off_type  INTEGER,
		PRIMARY KEY (version_id, trip_id, stop_sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS calendar (
		version_id INTEGER NOT NULL,
		service_id TEXT NOT NULL,
		monday     INTEGER NOT NULL,
		tuesday    INTEGER NOT NULL,
		wednesday  INTEGER NOT NULL,
		thursday   INTEGER NOT NULL,
		friday     INTEGER NOT NULL,
		saturday   INTEGER NOT NULL,
		sunday     INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL,
		PRIMARY KEY (version_id, service_id)
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_dates (
		version_id     INTEGER NOT NULL,
		service_id     TEXT NOT NULL,
		date           TEXT NOT NULL,
		exception_type INTEGER NOT NULL,
		PRIMARY KEY (version_id, service_id, date, exception_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_route_id ON trips (version_id, route_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_times_stop_id ON stop_times (version_id, stop_id)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_dates_date ON calendar_dates (version_id, date)`,
}

// VersionedTables lists every table that carries a version_id, children first.
var VersionedTables = []string{
	"stop_times", "trips", "calendar_dates", "calendar", "routes", "stops", "agency",
}

// EnsureSchema creates the schedule tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	db.logger.Debug("Schema ready", "statements", len(schemaStatements))
	return nil
}
