package consumer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"google.golang.org/protobuf/proto"
)

var fetchTime = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type update struct {
	stop      string
	seq       uint32
	arrival   int64
	departure int64
	delay     int32
}

func event(t int64, delay int32) *gtfs.TripUpdate_StopTimeEvent {
	if t == 0 && delay == 0 {
		return nil
	}
	e := &gtfs.TripUpdate_StopTimeEvent{}
	if t != 0 {
		e.Time = proto.Int64(t)
	}
	if delay != 0 {
		e.Delay = proto.Int32(delay)
	}
	return e
}

func tripEntity(id, tripID, routeID string, direction *uint32, updates ...update) *gtfs.FeedEntity {
	tu := &gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:      proto.String(tripID),
			RouteId:     proto.String(routeID),
			DirectionId: direction,
		},
	}
	for _, u := range updates {
		stu := &gtfs.TripUpdate_StopTimeUpdate{
			StopId:    proto.String(u.stop),
			Arrival:   event(u.arrival, 0),
			Departure: event(u.departure, u.delay),
		}
		if u.seq != 0 {
			stu.StopSequence = proto.Uint32(u.seq)
		}
		tu.StopTimeUpdate = append(tu.StopTimeUpdate, stu)
	}
	return &gtfs.FeedEntity{Id: proto.String(id), TripUpdate: tu}
}

func feedBytes(t *testing.T, entities ...*gtfs.FeedEntity) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(fetchTime.Unix())),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestConsumer(url string, m *metrics.Collector) *Consumer {
	cfg := config.Defaults().GTFSRealtime
	cfg.TripUpdatesURL = url
	cfg.Timeout = 2 * time.Second
	c := NewConsumer(cfg, time.UTC, logger.Nop(), m)
	c.now = func() time.Time { return fetchTime }
	return c
}

func ts(offset time.Duration) int64 { return fetchTime.Add(offset).Unix() }

func sampleFeed(t *testing.T) []byte {
	dir := proto.Uint32(1)
	return feedBytes(t,
		tripEntity("1", "T1", "R505", dir,
			update{stop: "S1", seq: 1, arrival: ts(2 * time.Minute), departure: ts(3 * time.Minute), delay: 60},
			update{stop: "S2", seq: 2, arrival: ts(8 * time.Minute)},
			update{stop: "S3", seq: 3},                                  // no timestamp
			update{stop: "S4", seq: 4, departure: ts(-25 * time.Minute)}, // stale for all stops, fresh for one stop
			update{stop: "S5", departure: ts(-35 * time.Minute)},          // stale everywhere
		),
		tripEntity("2", "T2", "R13", nil,
			update{stop: "s1", departure: ts(time.Minute)},
		),
		&gtfs.FeedEntity{Id: proto.String("alert"), Alert: &gtfs.Alert{}},
	)
}

func TestFetchAll(t *testing.T) {
	body := sampleFeed(t)
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })

	arrivals, err := newTestConsumer(srv.URL, nil).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(arrivals) != 3 {
		t.Fatalf("arrivals = %d, want 3: %+v", len(arrivals), arrivals)
	}

	first := arrivals[0]
	if first.StopID != "S1" || first.TripID != "T1" || first.RouteID != "R505" {
		t.Errorf("first = %+v", first)
	}
	if !first.Time.Equal(fetchTime.Add(3 * time.Minute)) {
		t.Errorf("departure should win over arrival, got %v", first.Time)
	}
	if first.DelaySeconds != nil {
		t.Error("all-stops path must drop the feed delay")
	}
	if first.DirectionID == nil || *first.DirectionID != 1 || first.StopSequence == nil || *first.StopSequence != 1 {
		t.Errorf("direction/sequence = %v/%v", first.DirectionID, first.StopSequence)
	}

	if !arrivals[1].Time.Equal(fetchTime.Add(8 * time.Minute)) {
		t.Errorf("arrival fallback time = %v", arrivals[1].Time)
	}
	if arrivals[2].DirectionID != nil || arrivals[2].StopSequence != nil {
		t.Errorf("unset direction and zero sequence should be nil: %+v", arrivals[2])
	}
}

func TestFetchAllStalenessBoundary(t *testing.T) {
	body := feedBytes(t, tripEntity("1", "T1", "R", nil,
		update{stop: "A", departure: ts(-20 * time.Minute)},
		update{stop: "B", departure: ts(-20*time.Minute - time.Second)},
	))
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })

	arrivals, _ := newTestConsumer(srv.URL, nil).FetchAll(context.Background())
	if len(arrivals) != 1 || arrivals[0].StopID != "A" {
		t.Errorf("arrivals = %+v, want only A", arrivals)
	}
}

func TestFetchForStop(t *testing.T) {
	body := sampleFeed(t)
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })
	c := newTestConsumer(srv.URL, nil)

	arrivals, err := c.FetchForStop(context.Background(), "S1", 10)
	if err != nil {
		t.Fatal(err)
	}
	// case-insensitive stop match, soonest first
	if len(arrivals) != 2 || arrivals[0].TripID != "T2" || arrivals[1].TripID != "T1" {
		t.Fatalf("arrivals = %+v", arrivals)
	}
	if arrivals[1].DelaySeconds == nil || *arrivals[1].DelaySeconds != 60 {
		t.Errorf("single-stop path should keep the feed delay")
	}

	stale, _ := c.FetchForStop(context.Background(), "S4", 5)
	if len(stale) != 1 {
		t.Errorf("25 minute old update is inside the 30 minute window, got %d", len(stale))
	}
	gone, _ := c.FetchForStop(context.Background(), "S5", 5)
	if len(gone) != 0 {
		t.Errorf("35 minute old update should be dropped")
	}
}

func TestFetchForStopClampsMax(t *testing.T) {
	var updates []update
	for i := 1; i <= 60; i++ {
		updates = append(updates, update{stop: "X", departure: ts(time.Duration(i) * time.Minute)})
	}
	body := feedBytes(t, tripEntity("1", "T", "R", nil, updates...))
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })
	c := newTestConsumer(srv.URL, nil)

	for _, tc := range []struct{ max, want int }{{0, 5}, {-1, 5}, {50, 5}, {49, 49}, {3, 3}} {
		got, _ := c.FetchForStop(context.Background(), "X", tc.max)
		if len(got) != tc.want {
			t.Errorf("max %d: got %d, want %d", tc.max, len(got), tc.want)
		}
	}
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotKey, gotUA string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotUA = r.Header.Get("User-Agent")
		w.Write(feedBytes(t))
	})

	c := newTestConsumer(srv.URL, nil)
	c.config.APIKeyHeader = "x-api-key"
	c.config.APIKeyValue = "secret"
	if _, err := c.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotKey != "secret" || gotUA != UserAgent {
		t.Errorf("headers = %q, %q", gotKey, gotUA)
	}
}

func TestFetchFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		outcome string
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "down", http.StatusBadGateway) }, "status"},
		{"decode", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not a protobuf")) }, "decode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewCollector()
			srv := serve(t, tc.handler)

			arrivals, err := newTestConsumer(srv.URL, m).FetchAll(context.Background())
			if err != nil || len(arrivals) != 0 {
				t.Errorf("got %v, %v; want empty, nil", arrivals, err)
			}
			if got := testutil.ToFloat64(m.FeedFetches.WithLabelValues(tc.outcome)); got != 1 {
				t.Errorf("%s outcome count = %v", tc.outcome, got)
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	arrivals, err := newTestConsumer(url, nil).FetchAll(context.Background())
	if err != nil || len(arrivals) != 0 {
		t.Errorf("got %v, %v; want empty, nil", arrivals, err)
	}
}

func TestFetchUnconfigured(t *testing.T) {
	arrivals, err := newTestConsumer("", nil).FetchForStop(context.Background(), "S1", 5)
	if err != nil || len(arrivals) != 0 {
		t.Errorf("got %v, %v; want empty, nil", arrivals, err)
	}
}

func TestFetchCancelled(t *testing.T) {
	body := sampleFeed(t)
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	arrivals, err := newTestConsumer(srv.URL, nil).FetchAll(ctx)
	if err != context.Canceled || arrivals != nil {
		t.Errorf("got %v, %v; want nil, context.Canceled", arrivals, err)
	}
}
