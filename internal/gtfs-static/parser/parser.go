package parser

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

// ParseOrder is the order files are read in, parents before children.
var ParseOrder = []string{
	"agency.txt",
	"stops.txt",
	"routes.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"trips.txt",
	"stop_times.txt",
}

type Parser struct {
	logger logger.Logger
}

func New(logger logger.Logger) *Parser {
	return &Parser{logger: logger}
}

type ParseCallbacks struct {
	OnAgency       func(agency *models.Agency) error
	OnStop         func(stop *models.Stop) error
	OnRoute        func(route *models.Route) error
	OnTrip         func(trip *models.Trip) error
	OnStopTime     func(stopTime *models.StopTime) error
	OnCalendar     func(calendar *models.Calendar) error
	OnCalendarDate func(calendarDate *models.CalendarDate) error
	OnFileComplete func(fileName string) error
}

func (p *Parser) ParseZip(ctx context.Context, zipPath string, callbacks ParseCallbacks) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer reader.Close()

	p.logger.Info("Parsing GTFS zip file", "path", zipPath, "files", len(reader.File))

	return p.Parse(ctx, &reader.Reader, callbacks)
}

// Parse walks the known GTFS files of an opened archive. Files may sit in a
// single top-level folder, as some agencies publish them.
func (p *Parser) Parse(ctx context.Context, reader *zip.Reader, callbacks ParseCallbacks) error {
	fileMap := make(map[string]*zip.File)
	for _, file := range reader.File {
		name := file.Name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		fileMap[name] = file
	}

	for _, fileName := range ParseOrder {
		file, exists := fileMap[fileName]
		if !exists {
			p.logger.Debug("File not found in archive", "file", fileName)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.parseFile(ctx, fileName, file, callbacks); err != nil {
			return fmt.Errorf("parsing %s: %w", fileName, err)
		}
	}

	p.logger.Info("GTFS parsing completed successfully")
	return nil
}

func (p *Parser) parseFile(ctx context.Context, fileName string, file *zip.File, callbacks ParseCallbacks) error {
	p.logger.Debug("Parsing file", "name", fileName, "size", file.UncompressedSize64)

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		p.logger.Warn("Empty GTFS file", "name", fileName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	headerMap := make(map[string]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headerMap[strings.TrimSpace(h)] = i
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}

		if err := p.dispatch(fileName, record, headerMap, callbacks); err != nil {
			return err
		}

		count++
		if count%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.logger.Debug("Progress", "file", fileName, "records", count)
		}
	}

	p.logger.Info("File parsed", "name", fileName, "records", count)

	if callbacks.OnFileComplete != nil {
		if err := callbacks.OnFileComplete(fileName); err != nil {
			return fmt.Errorf("file complete callback: %w", err)
		}
	}

	return nil
}

func (p *Parser) dispatch(fileName string, record []string, headerMap map[string]int, callbacks ParseCallbacks) error {
	switch fileName {
	case "agency.txt":
		if callbacks.OnAgency != nil {
			return callbacks.OnAgency(p.parseAgency(record, headerMap))
		}
	case "stops.txt":
		if callbacks.OnStop != nil {
			return callbacks.OnStop(p.parseStop(record, headerMap))
		}
	case "routes.txt":
		if callbacks.OnRoute != nil {
			return callbacks.OnRoute(p.parseRoute(record, headerMap))
		}
	case "trips.txt":
		if callbacks.OnTrip != nil {
			return callbacks.OnTrip(p.parseTrip(record, headerMap))
		}
	case "stop_times.txt":
		if callbacks.OnStopTime != nil {
			return callbacks.OnStopTime(p.parseStopTime(record, headerMap))
		}
	case "calendar.txt":
		if callbacks.OnCalendar != nil {
			calendar, err := p.parseCalendar(record, headerMap)
			if err != nil {
				p.logger.Warn("Failed to parse calendar record", "error", err)
				return nil
			}
			return callbacks.OnCalendar(calendar)
		}
	case "calendar_dates.txt":
		if callbacks.OnCalendarDate != nil {
			calendarDate, err := p.parseCalendarDate(record, headerMap)
			if err != nil {
				p.logger.Warn("Failed to parse calendar_date record", "error", err)
				return nil
			}
			return callbacks.OnCalendarDate(calendarDate)
		}
	}
	return nil
}

// Helper functions to safely get values from CSV records
func (p *Parser) getString(record []string, headerMap map[string]int, field string) string {
	if idx, ok := headerMap[field]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func (p *Parser) getInt(record []string, headerMap map[string]int, field string, defaultVal int) int {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

// getOptionalInt returns nil for a missing or malformed value.
func (p *Parser) getOptionalInt(record []string, headerMap map[string]int, field string) *int {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return nil
	}
	return &val
}

func (p *Parser) getFloat(record []string, headerMap map[string]int, field string, defaultVal float64) float64 {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) parseAgency(record []string, headerMap map[string]int) *models.Agency {
	return &models.Agency{
		AgencyID:       p.getString(record, headerMap, "agency_id"),
		AgencyName:     p.getString(record, headerMap, "agency_name"),
		AgencyURL:      p.getString(record, headerMap, "agency_url"),
		AgencyTimezone: p.getString(record, headerMap, "agency_timezone"),
		AgencyLang:     p.getString(record, headerMap, "agency_lang"),
		AgencyFareURL:  p.getString(record, headerMap, "agency_fare_url"),
	}
}

func (p *Parser) parseStop(record []string, headerMap map[string]int) *models.Stop {
	return &models.Stop{
		StopID:        p.getString(record, headerMap, "stop_id"),
		StopName:      p.getString(record, headerMap, "stop_name"),
		StopLat:       p.getFloat(record, headerMap, "stop_lat", 0),
		StopLon:       p.getFloat(record, headerMap, "stop_lon", 0),
		LocationType:  p.getInt(record, headerMap, "location_type", 0),
		ParentStation: p.getString(record, headerMap, "parent_station"),
	}
}

func (p *Parser) parseRoute(record []string, headerMap map[string]int) *models.Route {
	return &models.Route{
		RouteID:        p.getString(record, headerMap, "route_id"),
		AgencyID:       p.getString(record, headerMap, "agency_id"),
		RouteShortName: p.getString(record, headerMap, "route_short_name"),
		RouteLongName:  p.getString(record, headerMap, "route_long_name"),
		RouteType:      p.getOptionalInt(record, headerMap, "route_type"),
		RouteColor:     p.getString(record, headerMap, "route_color"),
		RouteTextColor: p.getString(record, headerMap, "route_text_color"),
	}
}

func (p *Parser) parseTrip(record []string, headerMap map[string]int) *models.Trip {
	return &models.Trip{
		TripID:       p.getString(record, headerMap, "trip_id"),
		RouteID:      p.getString(record, headerMap, "route_id"),
		ServiceID:    p.getString(record, headerMap, "service_id"),
		TripHeadsign: p.getString(record, headerMap, "trip_headsign"),
		DirectionID:  p.getOptionalInt(record, headerMap, "direction_id"),
	}
}

func (p *Parser) parseStopTime(record []string, headerMap map[string]int) *models.StopTime {
	return &models.StopTime{
		TripID:        p.getString(record, headerMap, "trip_id"),
		StopID:        p.getString(record, headerMap, "stop_id"),
		StopSequence:  p.getInt(record, headerMap, "stop_sequence", 0),
		ArrivalTime:   p.getString(record, headerMap, "arrival_time"),
		DepartureTime: p.getString(record, headerMap, "departure_time"),
		PickupType:    p.getInt(record, headerMap, "pickup_type", 0),
		DropOffType:   p.getInt(record, headerMap, "drop_off_type", 0),
	}
}

var weekdayColumns = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func (p *Parser) parseCalendar(record []string, headerMap map[string]int) (*models.Calendar, error) {
	startDate, err := models.ParseDate(p.getString(record, headerMap, "start_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}

	endDate, err := models.ParseDate(p.getString(record, headerMap, "end_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing end_date: %w", err)
	}

	cal := &models.Calendar{
		ServiceID: p.getString(record, headerMap, "service_id"),
		StartDate: startDate,
		EndDate:   endDate,
	}
	for day, column := range weekdayColumns {
		cal.Days[day] = p.getInt(record, headerMap, column, 0) == 1
	}
	return cal, nil
}

func (p *Parser) parseCalendarDate(record []string, headerMap map[string]int) (*models.CalendarDate, error) {
	date, err := models.ParseDate(p.getString(record, headerMap, "date"))
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}

	exceptionType := models.ExceptionType(p.getInt(record, headerMap, "exception_type", 0))
	if exceptionType != models.ServiceAdded && exceptionType != models.ServiceRemoved {
		return nil, fmt.Errorf("unknown exception_type %d", exceptionType)
	}

	return &models.CalendarDate{
		ServiceID:     p.getString(record, headerMap, "service_id"),
		Date:          date,
		ExceptionType: exceptionType,
	}, nil
}
