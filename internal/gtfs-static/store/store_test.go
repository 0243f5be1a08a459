package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-static/gtfstest"
	"github.com/ttctransit-data/internal/gtfs-static/store"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

func newSampleStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(gtfstest.SampleDB(t), logger.Nop())
}

func TestSortRoutes(t *testing.T) {
	routes := []models.Route{
		{RouteShortName: "10"},
		{RouteShortName: "2"},
		{RouteShortName: "9A"},
		{RouteShortName: "1"},
		{RouteShortName: "Blue", RouteLongName: "B"},
		{RouteShortName: "Blue", RouteLongName: "A"},
	}
	store.SortRoutes(routes)

	want := []string{"1", "2", "10", "9A", "Blue/A", "Blue/B"}
	for i, r := range routes {
		got := r.RouteShortName
		if r.RouteLongName != "" {
			got += "/" + r.RouteLongName
		}
		if got != want[i] {
			t.Errorf("position %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestListRoutes(t *testing.T) {
	s := newSampleStore(t)

	routes, err := s.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes() error = %v", err)
	}

	var got []string
	for _, r := range routes {
		got = append(got, r.RouteShortName)
	}
	want := []string{"10", "13", "505", "9A"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("routes = %v, want %v", got, want)
	}
	if routes[2].RouteColor != "FF0000" || routes[2].RouteType == nil || *routes[2].RouteType != 0 {
		t.Errorf("505 = %+v", routes[2])
	}
}

func TestGetRoute(t *testing.T) {
	s := newSampleStore(t)
	ctx := context.Background()

	r, err := s.GetRoute(ctx, "R13")
	if err != nil || r == nil || r.RouteLongName != "AVENUE RD" {
		t.Fatalf("GetRoute(R13) = %+v, %v", r, err)
	}

	r, err = s.GetRoute(ctx, "nope")
	if err != nil || r != nil {
		t.Errorf("unknown route = %+v, %v; want nil, nil", r, err)
	}
}

func TestListStopsForRoutePicksLongestTripPerDirection(t *testing.T) {
	s := newSampleStore(t)

	stops, err := s.ListStopsForRoute(context.Background(), "R505")
	if err != nil {
		t.Fatalf("ListStopsForRoute() error = %v", err)
	}

	var got []string
	for _, st := range stops {
		got = append(got, fmt.Sprintf("%d:%s", *st.DirectionID, st.StopID))
	}
	// direction 0 uses T1 (3 stops) over T3 and T4, direction 1 uses T2
	want := []string{"0:S1", "0:S2", "0:S3", "1:S3", "1:S1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("stops = %v, want %v", got, want)
	}
	if stops[0].StopName != "Dundas St West at Bathurst" || stops[0].StopLat == 0 {
		t.Errorf("stop details missing: %+v", stops[0])
	}
}

func TestListStopsForRouteNoDirectionFirst(t *testing.T) {
	s := newSampleStore(t)

	stops, err := s.ListStopsForRoute(context.Background(), "R13")
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 3 || stops[0].DirectionID != nil {
		t.Fatalf("stops = %+v", stops)
	}
	if stops[0].StopID != "S4" || stops[1].StopSequence != 2 {
		t.Errorf("unexpected order %+v", stops)
	}
}

func TestListTripsForRoute(t *testing.T) {
	s := newSampleStore(t)

	trips, err := s.ListTripsForRoute(context.Background(), "R505")
	if err != nil {
		t.Fatal(err)
	}
	if len(trips) != 4 || trips[0].TripID != "T1" || trips[0].TripHeadsign != "East - 505 Dundas towards Broadview" {
		t.Errorf("trips = %+v", trips)
	}

	trips, err = s.ListTripsForRoute(context.Background(), "missing")
	if err != nil || len(trips) != 0 {
		t.Errorf("unknown route trips = %v, %v", trips, err)
	}
}

func TestGetScheduledDeparture(t *testing.T) {
	s := newSampleStore(t)
	ctx := context.Background()
	seq := func(n int) *int { return &n }

	tests := []struct {
		name   string
		trip   string
		seq    *int
		stop   string
		want   string
		wantOK bool
	}{
		{"exact sequence", "T1", seq(2), "S2", "08:05:30", true},
		{"sequence wins over stop", "T1", seq(3), "S1", "08:10:30", true},
		{"fallback to stop", "T1", seq(99), "S2", "08:05:30", true},
		{"no sequence", "T1", nil, "S3", "08:10:30", true},
		{"post midnight", "T5", nil, "S2", "25:10:00", true},
		{"unknown trip", "T9", nil, "S1", "", false},
		{"unparseable time", "T5", seq(3), "S9", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := s.GetScheduledDeparture(ctx, tc.trip, tc.seq, tc.stop)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got.String() != tc.want {
				t.Errorf("departure = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNameLookups(t *testing.T) {
	s := newSampleStore(t)
	ctx := context.Background()

	stops, err := s.GetStopNames(ctx)
	if err != nil || stops["S4"] != "Avenue Rd at Bloor" {
		t.Errorf("GetStopNames() = %v, %v", stops, err)
	}

	routes, err := s.RouteNames(ctx)
	if err != nil || routes["R505"] != "505" {
		t.Errorf("RouteNames() = %v, %v", routes, err)
	}
}

func TestGetTripHeadsigns(t *testing.T) {
	s := newSampleStore(t)

	ids := []string{"T5", "T1", "T5", "", "missing"}
	got, err := s.GetTripHeadsigns(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("headsigns = %v", got)
	}
	if got["T5"] != "South - 13A Avenue Rd towards Queen's Park" {
		t.Errorf("T5 headsign = %q", got["T5"])
	}

	empty, err := s.GetTripHeadsigns(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty lookup = %v, %v", empty, err)
	}
}

func TestGetTripHeadsignsChunks(t *testing.T) {
	database := gtfstest.NewDB(t)
	trips := "route_id,service_id,trip_id,trip_headsign\n"
	var ids []string
	for i := 0; i < 1200; i++ {
		id := fmt.Sprintf("X%d", i)
		ids = append(ids, id)
		trips += fmt.Sprintf("R,S,%s,Head %d\n", id, i)
	}
	gtfstest.ImportActive(t, database, map[string]string{"trips.txt": trips})

	got, err := store.New(database, logger.Nop()).GetTripHeadsigns(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1200 || got["X1199"] != "Head 1199" {
		t.Errorf("got %d headsigns", len(got))
	}
}

func TestCalendarReads(t *testing.T) {
	s := newSampleStore(t)
	ctx := context.Background()

	rules, err := s.CalendarRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || !rules["WKND"].Days[0] || rules["WKND"].Days[1] {
		t.Errorf("rules = %+v", rules)
	}

	exc, err := s.CalendarExceptions(ctx, "20240102")
	if err != nil {
		t.Fatal(err)
	}
	if len(exc["HOL"]) != 2 {
		t.Errorf("HOL exceptions = %v, want both types", exc["HOL"])
	}
}

func TestReadsSeeOnlyActiveGeneration(t *testing.T) {
	database := gtfstest.SampleDB(t)
	gtfstest.ImportActive(t, database, map[string]string{
		"routes.txt": "route_id,route_short_name,route_long_name\nR1,1,YONGE\n",
	})

	routes, err := store.New(database, logger.Nop()).ListRoutes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].RouteID != "R1" {
		t.Errorf("routes = %+v, want only the new generation", routes)
	}
}
