// Package store is the read side of the schedule database. Every query is
// scoped to the active import generation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

// headsignChunk bounds the IN list of a bulk headsign lookup.
const headsignChunk = 500

type Store struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, log logger.Logger) *Store {
	return &Store{db: database, logger: log.With("component", "store")}
}

func (s *Store) ListRoutes(ctx context.Context) ([]models.Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''),
		       route_type, COALESCE(route_color, ''), COALESCE(route_text_color, '')
		FROM routes
		WHERE version_id = `+db.ActiveVersion)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routes: %w", err)
	}

	SortRoutes(routes)
	return routes, nil
}

// GetRoute returns nil when the route is unknown.
func (s *Store) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''),
		       route_type, COALESCE(route_color, ''), COALESCE(route_text_color, '')
		FROM routes
		WHERE version_id = `+db.ActiveVersion+` AND route_id = ?`, routeID)

	r, err := scanRoute(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying route %s: %w", routeID, err)
	}
	return r, nil
}

// RouteNames maps route id to its short name, or the id when the name is blank.
func (s *Store) RouteNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, COALESCE(route_short_name, '')
		FROM routes
		WHERE version_id = `+db.ActiveVersion)
	if err != nil {
		return nil, fmt.Errorf("querying route names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, short string
		if err := rows.Scan(&id, &short); err != nil {
			return nil, fmt.Errorf("scanning route name: %w", err)
		}
		if strings.TrimSpace(short) == "" {
			short = id
		}
		names[id] = short
	}
	return names, rows.Err()
}

// ListStopsForRoute returns, for each direction, the stops of the trip with
// the most stop times (ties go to the lowest trip id). Directions are ordered
// with the unset direction first.
func (s *Store) ListStopsForRoute(ctx context.Context, routeID string) ([]models.RouteStop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.trip_id, t.direction_id, COUNT(st.stop_id)
		FROM trips t
		JOIN stop_times st ON st.version_id = t.version_id AND st.trip_id = t.trip_id
		WHERE t.version_id = `+db.ActiveVersion+` AND t.route_id = ?
		GROUP BY t.trip_id, t.direction_id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying trip patterns: %w", err)
	}

	type pattern struct {
		tripID    string
		direction *int
		stops     int
	}
	best := make(map[string]pattern)
	for rows.Next() {
		var (
			p   pattern
			dir sql.NullInt64
		)
		if err := rows.Scan(&p.tripID, &dir, &p.stops); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning trip pattern: %w", err)
		}
		p.direction = intPtr(dir)
		key := directionKey(p.direction)
		if cur, ok := best[key]; !ok || p.stops > cur.stops || (p.stops == cur.stops && p.tripID < cur.tripID) {
			best[key] = p
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trip patterns: %w", err)
	}

	patterns := make([]pattern, 0, len(best))
	for _, p := range best {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		return directionOrder(patterns[i].direction) < directionOrder(patterns[j].direction)
	})

	var result []models.RouteStop
	for _, p := range patterns {
		stops, err := s.stopsForTrip(ctx, p.tripID, p.direction)
		if err != nil {
			return nil, err
		}
		result = append(result, stops...)
	}
	return result, nil
}

func (s *Store) stopsForTrip(ctx context.Context, tripID string, direction *int) ([]models.RouteStop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.stop_id, s.stop_name, COALESCE(s.stop_lat, 0), COALESCE(s.stop_lon, 0), st.stop_sequence
		FROM stop_times st
		JOIN stops s ON s.version_id = st.version_id AND s.stop_id = st.stop_id
		WHERE st.version_id = `+db.ActiveVersion+` AND st.trip_id = ?
		ORDER BY st.stop_sequence`, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying stops for trip %s: %w", tripID, err)
	}
	defer rows.Close()

	var stops []models.RouteStop
	for rows.Next() {
		rs := models.RouteStop{DirectionID: direction}
		if err := rows.Scan(&rs.StopID, &rs.StopName, &rs.StopLat, &rs.StopLon, &rs.StopSequence); err != nil {
			return nil, fmt.Errorf("scanning route stop: %w", err)
		}
		stops = append(stops, rs)
	}
	return stops, rows.Err()
}

func (s *Store) ListTripsForRoute(ctx context.Context, routeID string) ([]models.Trip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, route_id, COALESCE(service_id, ''), COALESCE(trip_headsign, ''), direction_id
		FROM trips
		WHERE version_id = `+db.ActiveVersion+` AND route_id = ?
		ORDER BY trip_id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		var (
			t   models.Trip
			dir sql.NullInt64
		)
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ServiceID, &t.TripHeadsign, &dir); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		t.DirectionID = intPtr(dir)
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// StopTimesAtStop returns every scheduled visit to stopID regardless of
// service day. ServiceID is set so callers can apply calendar rules.
func (s *Store) StopTimesAtStop(ctx context.Context, stopID string) ([]models.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.stop_id, st.trip_id, t.route_id,
		       COALESCE(r.route_short_name, ''), COALESCE(r.route_long_name, ''),
		       COALESCE(t.service_id, ''), COALESCE(t.trip_headsign, ''), t.direction_id,
		       COALESCE(st.arrival_time, ''), COALESCE(st.departure_time, '')
		FROM stop_times st
		JOIN trips t ON t.version_id = st.version_id AND t.trip_id = st.trip_id
		JOIN routes r ON r.version_id = t.version_id AND r.route_id = t.route_id
		WHERE st.version_id = `+db.ActiveVersion+` AND st.stop_id = ?`, stopID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times at %s: %w", stopID, err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		var (
			e   models.ScheduleEntry
			dir sql.NullInt64
		)
		if err := rows.Scan(&e.StopID, &e.TripID, &e.RouteID, &e.RouteShortName, &e.RouteLongName,
			&e.ServiceID, &e.TripHeadsign, &dir, &e.ArrivalTime, &e.DepartureTime); err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		e.DirectionID = intPtr(dir)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CalendarRules returns the weekly patterns keyed by service id.
func (s *Store) CalendarRules(ctx context.Context) (map[string]models.Calendar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, sunday, monday, tuesday, wednesday, thursday, friday, saturday,
		       start_date, end_date
		FROM calendar
		WHERE version_id = `+db.ActiveVersion)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	rules := make(map[string]models.Calendar)
	for rows.Next() {
		var (
			c          models.Calendar
			days       [7]int
			start, end string
		)
		if err := rows.Scan(&c.ServiceID, &days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6],
			&start, &end); err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		for i, d := range days {
			c.Days[i] = d == 1
		}
		if c.StartDate, err = models.ParseDate(start); err != nil {
			s.logger.Warn("Skipping calendar with bad start date", "service_id", c.ServiceID, "error", err)
			continue
		}
		if c.EndDate, err = models.ParseDate(end); err != nil {
			s.logger.Warn("Skipping calendar with bad end date", "service_id", c.ServiceID, "error", err)
			continue
		}
		rules[c.ServiceID] = c
	}
	return rules, rows.Err()
}

// CalendarExceptions returns the exception types recorded for each service on date.
func (s *Store) CalendarExceptions(ctx context.Context, date string) (map[string][]models.ExceptionType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, exception_type
		FROM calendar_dates
		WHERE version_id = `+db.ActiveVersion+` AND date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("querying calendar dates: %w", err)
	}
	defer rows.Close()

	exceptions := make(map[string][]models.ExceptionType)
	for rows.Next() {
		var (
			serviceID string
			et        int
		)
		if err := rows.Scan(&serviceID, &et); err != nil {
			return nil, fmt.Errorf("scanning calendar date: %w", err)
		}
		exceptions[serviceID] = append(exceptions[serviceID], models.ExceptionType(et))
	}
	return exceptions, rows.Err()
}

// GetScheduledDeparture looks up the departure time of tripID at a stop,
// by stop sequence first and then by the earliest visit to stopID. The bool
// is false when neither lookup yields a valid time.
func (s *Store) GetScheduledDeparture(ctx context.Context, tripID string, stopSequence *int, stopID string) (models.ClockTime, bool, error) {
	if stopSequence != nil {
		c, ok, err := s.departureWhere(ctx, "stop_sequence = ?", tripID, *stopSequence)
		if err != nil || ok {
			return c, ok, err
		}
	}
	return s.departureWhere(ctx, "stop_id = ? ORDER BY stop_sequence", tripID, stopID)
}

func (s *Store) departureWhere(ctx context.Context, cond string, tripID string, arg interface{}) (models.ClockTime, bool, error) {
	var dep sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT departure_time
		FROM stop_times
		WHERE version_id = `+db.ActiveVersion+` AND trip_id = ? AND `+cond+`
		LIMIT 1`, tripID, arg).Scan(&dep)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying scheduled departure: %w", err)
	}
	if !dep.Valid || strings.TrimSpace(dep.String) == "" {
		return 0, false, nil
	}
	c, err := models.ParseClock(dep.String)
	if err != nil {
		return 0, false, nil
	}
	return c, true, nil
}

// GetStopNames maps stop id to stop name.
func (s *Store) GetStopNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stop_id, stop_name
		FROM stops
		WHERE version_id = `+db.ActiveVersion)
	if err != nil {
		return nil, fmt.Errorf("querying stop names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning stop name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// GetTripHeadsigns resolves headsigns for the given trips in bulk. Unknown
// trips are absent from the result.
func (s *Store) GetTripHeadsigns(ctx context.Context, tripIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(tripIDs))

	seen := make(map[string]struct{}, len(tripIDs))
	ids := make([]string, 0, len(tripIDs))
	for _, id := range tripIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += headsignChunk {
		end := start + headsignChunk
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.loadHeadsigns(ctx, ids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) loadHeadsigns(ctx context.Context, ids []string, into map[string]string) error {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, COALESCE(trip_headsign, '')
		FROM trips
		WHERE version_id = `+db.ActiveVersion+` AND trip_id IN (`+db.Placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("querying headsigns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, headsign string
		if err := rows.Scan(&id, &headsign); err != nil {
			return fmt.Errorf("scanning headsign: %w", err)
		}
		into[id] = headsign
	}
	return rows.Err()
}

// SortRoutes orders routes for display: numeric short names ascending as
// integers, then the rest lexically, ties broken by long name.
func SortRoutes(routes []models.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		an, aErr := strconv.Atoi(a.RouteShortName)
		bn, bErr := strconv.Atoi(b.RouteShortName)
		aNum, bNum := aErr == nil, bErr == nil

		switch {
		case aNum && !bNum:
			return true
		case !aNum && bNum:
			return false
		case aNum && bNum && an != bn:
			return an < bn
		case !aNum && !bNum && a.RouteShortName != b.RouteShortName:
			return a.RouteShortName < b.RouteShortName
		}
		return a.RouteLongName < b.RouteLongName
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(row rowScanner) (*models.Route, error) {
	var (
		r         models.Route
		routeType sql.NullInt64
	)
	if err := row.Scan(&r.RouteID, &r.RouteShortName, &r.RouteLongName, &routeType, &r.RouteColor, &r.RouteTextColor); err != nil {
		return nil, err
	}
	r.RouteType = intPtr(routeType)
	return &r, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func directionKey(d *int) string {
	if d == nil {
		return "none"
	}
	return strconv.Itoa(*d)
}

func directionOrder(d *int) int {
	if d == nil {
		return -1
	}
	return *d
}
