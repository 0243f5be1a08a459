package gtfs_realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-static/gtfstest"
	"github.com/ttctransit-data/internal/gtfs-static/store"
	"google.golang.org/protobuf/proto"
)

func feedWithArrival(t *testing.T, at time.Time) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("1"),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{
					TripId:      proto.String("T1"),
					RouteId:     proto.String("R505"),
					DirectionId: proto.Uint32(0),
				},
				StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{{
					StopId:       proto.String("S1"),
					StopSequence: proto.Uint32(1),
					Departure:    &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(at.Unix())},
				}},
			},
		}},
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestManager(t *testing.T, url string) *Manager {
	t.Helper()
	cfg := config.Defaults().GTFSRealtime
	cfg.TripUpdatesURL = url
	cfg.Timeout = 2 * time.Second

	loc, err := time.LoadLocation("America/Toronto")
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(gtfstest.SampleDB(t), logger.Nop())
	return NewManager(cfg, loc, st, logger.Nop(), nil)
}

func TestManagerUnconfigured(t *testing.T) {
	m := newTestManager(t, "")
	ctx := context.Background()

	if m.Configured() {
		t.Error("Configured() = true without a feed URL")
	}
	arrivals, err := m.NextArrivals(ctx, "S1", 5)
	if err != nil || arrivals == nil || len(arrivals) != 0 {
		t.Errorf("NextArrivals() = %v, %v; want empty", arrivals, err)
	}
	delays, err := m.Delays(ctx, 10)
	if err != nil || delays == nil || len(delays) != 0 {
		t.Errorf("Delays() = %v, %v; want empty", delays, err)
	}
	lines, err := m.Board(ctx, []string{"S1"}, 10)
	if err != nil || len(lines) != 0 {
		t.Errorf("Board() = %v, %v; want empty", lines, err)
	}
}

func TestManagerEndToEnd(t *testing.T) {
	body := feedWithArrival(t, time.Now().Add(5*time.Minute+20*time.Second))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	if !m.Configured() {
		t.Fatal("Configured() = false")
	}

	arrivals, err := m.NextArrivals(ctx, "S1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(arrivals) != 1 || arrivals[0].TripID != "T1" {
		t.Errorf("arrivals = %+v", arrivals)
	}

	lines, err := m.Board(ctx, []string{"s1"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "505 E - 5m" {
		t.Errorf("board = %q, want [505 E - 5m]", lines)
	}

	if _, err := m.Delays(ctx, 10); err != nil {
		t.Errorf("Delays() error = %v", err)
	}
}
