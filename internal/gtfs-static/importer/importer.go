package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ttctransit-data/internal/common/db"
	"github.com/ttctransit-data/internal/gtfs-static/parser"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

// Stats counts the rows written per table.
type Stats map[string]int

func (s Stats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Importer loads a GTFS bundle into one generation. The generation must
// already exist in feed_versions and stays inactive until activated.
type Importer struct {
	db        *db.DB
	versionID int
	batchSize int
}

func NewImporter(database *db.DB, versionID int) *Importer {
	return &Importer{
		db:        database,
		versionID: versionID,
		batchSize: 500,
	}
}

func (i *Importer) Import(ctx context.Context, zipPath string) (Stats, error) {
	p := parser.New(i.db.Logger())

	agencyBatch := i.newBatchInserter("agency")
	stopBatch := i.newBatchInserter("stops")
	routeBatch := i.newBatchInserter("routes")
	calendarBatch := i.newBatchInserter("calendar")
	calendarDateBatch := i.newBatchInserter("calendar_dates")
	tripBatch := i.newBatchInserter("trips")
	stopTimeBatch := i.newBatchInserter("stop_times")

	callbacks := parser.ParseCallbacks{
		OnAgency: func(agency *models.Agency) error {
			return agencyBatch.Add(
				i.versionID,
				agency.AgencyID,
				agency.AgencyName,
				nullString(agency.AgencyURL),
				agency.AgencyTimezone,
				nullString(agency.AgencyLang),
				nullString(agency.AgencyFareURL),
			)
		},
		OnStop: func(stop *models.Stop) error {
			return stopBatch.Add(
				i.versionID,
				stop.StopID,
				stop.StopName,
				sql.NullFloat64{Float64: stop.StopLat, Valid: stop.StopLat != 0},
				sql.NullFloat64{Float64: stop.StopLon, Valid: stop.StopLon != 0},
				stop.LocationType,
				nullString(stop.ParentStation),
			)
		},
		OnRoute: func(route *models.Route) error {
			return routeBatch.Add(
				i.versionID,
				route.RouteID,
				nullString(route.AgencyID),
				nullString(route.RouteShortName),
				nullString(route.RouteLongName),
				nullInt(route.RouteType),
				nullString(route.RouteColor),
				nullString(route.RouteTextColor),
			)
		},
		OnCalendar: func(calendar *models.Calendar) error {
			values := []interface{}{i.versionID, calendar.ServiceID}
			// column order is monday..sunday
			for _, day := range []int{1, 2, 3, 4, 5, 6, 0} {
				values = append(values, boolInt(calendar.Days[day]))
			}
			values = append(values, models.FormatDate(calendar.StartDate), models.FormatDate(calendar.EndDate))
			return calendarBatch.Add(values...)
		},
		OnCalendarDate: func(calendarDate *models.CalendarDate) error {
			return calendarDateBatch.Add(
				i.versionID,
				calendarDate.ServiceID,
				models.FormatDate(calendarDate.Date),
				int(calendarDate.ExceptionType),
			)
		},
		OnTrip: func(trip *models.Trip) error {
			return tripBatch.Add(
				i.versionID,
				trip.TripID,
				trip.RouteID,
				nullString(trip.ServiceID),
				nullString(trip.TripHeadsign),
				nullInt(trip.DirectionID),
			)
		},
		OnStopTime: func(stopTime *models.StopTime) error {
			return stopTimeBatch.Add(
				i.versionID,
				stopTime.TripID,
				stopTime.StopID,
				stopTime.StopSequence,
				nullString(stopTime.ArrivalTime),
				nullString(stopTime.DepartureTime),
				stopTime.PickupType,
				stopTime.DropOffType,
			)
		},
	}

	tx, err := i.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	batches := []*batchInserter{
		agencyBatch, stopBatch, routeBatch, calendarBatch,
		calendarDateBatch, tripBatch, stopTimeBatch,
	}
	byFile := make(map[string]*batchInserter, len(batches))
	for _, batch := range batches {
		batch.ctx = ctx
		batch.tx = tx
		byFile[batch.tableName+".txt"] = batch
	}

	// Flush each table as soon as its file is done so children never
	// reach the database before their parents.
	callbacks.OnFileComplete = func(fileName string) error {
		if batch, ok := byFile[fileName]; ok {
			return batch.Flush()
		}
		return nil
	}

	if err := p.ParseZip(ctx, zipPath, callbacks); err != nil {
		return nil, fmt.Errorf("parsing zip: %w", err)
	}

	stats := make(Stats, len(batches))
	for _, batch := range batches {
		if err := batch.Flush(); err != nil {
			return nil, fmt.Errorf("flushing %s batch: %w", batch.tableName, err)
		}
		stats[batch.tableName] = batch.total
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	i.db.Logger().Info("Import completed successfully",
		"version_id", i.versionID,
		"rows", stats.Total(),
		"stop_times", stats["stop_times"])

	return stats, nil
}

type batchInserter struct {
	db         *db.DB
	ctx        context.Context
	tableName  string
	columns    []string
	values     []interface{}
	valueCount int
	batchSize  int
	total      int
	tx         *sql.Tx
}

func (i *Importer) newBatchInserter(tableName string) *batchInserter {
	columns := getColumnsForTable(tableName)
	return &batchInserter{
		db:        i.db,
		tableName: tableName,
		columns:   columns,
		values:    make([]interface{}, 0, i.batchSize*len(columns)),
		batchSize: i.batchSize,
	}
}

func (b *batchInserter) Add(values ...interface{}) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("%s: got %d values for %d columns", b.tableName, len(values), len(b.columns))
	}
	b.values = append(b.values, values...)
	b.valueCount++

	if b.valueCount >= b.batchSize {
		return b.Flush()
	}

	return nil
}

func (b *batchInserter) Flush() error {
	if b.valueCount == 0 {
		return nil
	}

	query := b.db.Rebind(b.buildInsertQuery())
	res, err := b.tx.ExecContext(b.ctx, query, b.values...)
	if err != nil {
		return fmt.Errorf("executing batch insert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		b.total += int(n)
	} else {
		b.total += b.valueCount
	}

	b.values = b.values[:0]
	b.valueCount = 0

	return nil
}

func (b *batchInserter) buildInsertQuery() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		b.tableName,
		strings.Join(b.columns, ", ")))

	row := "(" + db.Placeholders(len(b.columns)) + ")"
	for i := 0; i < b.valueCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
	}

	sb.WriteString(" ON CONFLICT DO NOTHING")

	return sb.String()
}

func getColumnsForTable(tableName string) []string {
	switch tableName {
	case "agency":
		return []string{"version_id", "agency_id", "agency_name", "agency_url", "agency_timezone", "agency_lang", "agency_fare_url"}
	case "stops":
		return []string{"version_id", "stop_id", "stop_name", "stop_lat", "stop_lon", "location_type", "parent_station"}
	case "routes":
		return []string{"version_id", "route_id", "agency_id", "route_short_name", "route_long_name", "route_type", "route_color", "route_text_color"}
	case "calendar":
		return []string{"version_id", "service_id", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "start_date", "end_date"}
	case "calendar_dates":
		return []string{"version_id", "service_id", "date", "exception_type"}
	case "trips":
		return []string{"version_id", "trip_id", "route_id", "service_id", "trip_headsign", "direction_id"}
	case "stop_times":
		return []string{"version_id", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "pickup_type", "drop_off_type"}
	default:
		return nil
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
