package parser_test

import (
	"context"
	"testing"
	"time"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-static/gtfstest"
	"github.com/ttctransit-data/internal/gtfs-static/parser"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

func TestParseZipSampleFeed(t *testing.T) {
	path := gtfstest.WriteZip(t, gtfstest.SampleFeed)
	p := parser.New(logger.Nop())

	var (
		stops     []*models.Stop
		routes    []*models.Route
		trips     []*models.Trip
		stopTimes []*models.StopTime
		calendars []*models.Calendar
		dates     []*models.CalendarDate
		files     []string
	)

	err := p.ParseZip(context.Background(), path, parser.ParseCallbacks{
		OnStop:         func(s *models.Stop) error { stops = append(stops, s); return nil },
		OnRoute:        func(r *models.Route) error { routes = append(routes, r); return nil },
		OnTrip:         func(tr *models.Trip) error { trips = append(trips, tr); return nil },
		OnStopTime:     func(st *models.StopTime) error { stopTimes = append(stopTimes, st); return nil },
		OnCalendar:     func(c *models.Calendar) error { calendars = append(calendars, c); return nil },
		OnCalendarDate: func(cd *models.CalendarDate) error { dates = append(dates, cd); return nil },
		OnFileComplete: func(name string) error { files = append(files, name); return nil },
	})
	if err != nil {
		t.Fatalf("ParseZip() error = %v", err)
	}

	if len(stops) != 4 || stops[0].StopID != "S1" {
		t.Fatalf("stops = %d, first %+v (header BOM not stripped?)", len(stops), stops[0])
	}
	if len(routes) != 4 || routes[0].RouteType == nil || *routes[0].RouteType != 0 {
		t.Errorf("unexpected routes %+v", routes[0])
	}
	if len(trips) != 6 {
		t.Fatalf("trips = %d, want 6", len(trips))
	}
	if trips[0].DirectionID == nil || *trips[0].DirectionID != 0 {
		t.Errorf("T1 direction = %v, want 0", trips[0].DirectionID)
	}
	if trips[4].DirectionID != nil {
		t.Errorf("T5 direction should be unset, got %d", *trips[4].DirectionID)
	}
	if len(stopTimes) != 13 || stopTimes[10].ArrivalTime != "25:10:00" {
		t.Errorf("stop times not kept verbatim: %d rows", len(stopTimes))
	}

	if len(calendars) != 2 {
		t.Fatalf("calendars = %d, want 2", len(calendars))
	}
	wkdy := calendars[0]
	if wkdy.Days[time.Sunday] || !wkdy.Days[time.Monday] || !wkdy.Days[time.Friday] || wkdy.Days[time.Saturday] {
		t.Errorf("weekday flags wrong: %v", wkdy.Days)
	}
	if !wkdy.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start date = %v", wkdy.StartDate)
	}

	if len(dates) != 5 || dates[0].ExceptionType != models.ServiceRemoved || dates[1].ExceptionType != models.ServiceAdded {
		t.Errorf("unexpected calendar dates %+v", dates)
	}

	wantOrder := []string{"agency.txt", "stops.txt", "routes.txt", "calendar.txt", "calendar_dates.txt", "trips.txt", "stop_times.txt"}
	if len(files) != len(wantOrder) {
		t.Fatalf("files = %v", files)
	}
	for i := range wantOrder {
		if files[i] != wantOrder[i] {
			t.Errorf("file %d = %s, want %s", i, files[i], wantOrder[i])
		}
	}
}

func TestParseSkipsBadCalendarRows(t *testing.T) {
	path := gtfstest.WriteZip(t, map[string]string{
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"A,1,1,1,1,1,1,1,2024-01-01,20240131\n" +
			"B,1,1,1,1,1,1,1,20240101,20240131\n",
		"calendar_dates.txt": "service_id,date,exception_type\n" +
			"B,20240105,3\n",
	})

	var services []string
	dates := 0
	err := parser.New(logger.Nop()).ParseZip(context.Background(), path, parser.ParseCallbacks{
		OnCalendar:     func(c *models.Calendar) error { services = append(services, c.ServiceID); return nil },
		OnCalendarDate: func(*models.CalendarDate) error { dates++; return nil },
	})
	if err != nil {
		t.Fatalf("ParseZip() error = %v", err)
	}
	if len(services) != 1 || services[0] != "B" {
		t.Errorf("services = %v, want [B]", services)
	}
	if dates != 0 {
		t.Errorf("unknown exception type should be skipped, got %d rows", dates)
	}
}

func TestParseNestedFolder(t *testing.T) {
	path := gtfstest.WriteZip(t, map[string]string{
		"ttc/stops.txt": "stop_id,stop_name\nS9,Queen St\n",
	})

	var got []string
	err := parser.New(logger.Nop()).ParseZip(context.Background(), path, parser.ParseCallbacks{
		OnStop: func(s *models.Stop) error { got = append(got, s.StopName); return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Queen St" {
		t.Errorf("stops = %v", got)
	}
}

func TestParseHonoursCancellation(t *testing.T) {
	path := gtfstest.WriteZip(t, gtfstest.SampleFeed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := parser.New(logger.Nop()).ParseZip(ctx, path, parser.ParseCallbacks{})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
