package consumer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"google.golang.org/protobuf/proto"
)

const (
	UserAgent = "ttctransit-data/1.0"

	DefaultStopResults = 5
	MaxStopResults     = 50
)

// Arrival is one stop-time update from the trip updates feed. Time is the
// best known departure from the stop in the agency timezone.
type Arrival struct {
	StopID       string
	TripID       string
	RouteID      string
	DirectionID  *int
	StopSequence *int
	Time         time.Time
	DelaySeconds *int
}

// Consumer fetches the trip updates feed on demand. Every call performs one
// HTTP request; nothing is cached between calls.
type Consumer struct {
	config     config.GTFSRealtimeConfig
	location   *time.Location
	httpClient *http.Client
	logger     logger.Logger
	metrics    *metrics.Collector
	now        func() time.Time
}

func NewConsumer(cfg config.GTFSRealtimeConfig, loc *time.Location, log logger.Logger, m *metrics.Collector) *Consumer {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	if loc == nil {
		loc = time.Local
	}

	return &Consumer{
		config:     cfg,
		location:   loc,
		httpClient: client,
		logger:     log.With("component", "realtime_consumer"),
		metrics:    m,
		now:        time.Now,
	}
}

// FetchAll returns every usable stop-time update observed no more than the
// all-stops staleness window ago. Feed-reported delays are dropped.
// Feed failures yield an empty result; only cancellation is returned.
func (c *Consumer) FetchAll(ctx context.Context) ([]Arrival, error) {
	feed, err := c.fetchFeed(ctx)
	if err != nil || feed == nil {
		return nil, err
	}

	cutoff := c.now().Add(-c.config.AllStopsStaleness)
	var result []Arrival
	c.eachUpdate(feed, func(a Arrival, _ *gtfs.TripUpdate_StopTimeUpdate) {
		if a.Time.Before(cutoff) {
			return
		}
		result = append(result, a)
	})
	return result, nil
}

// FetchForStop returns updates for one stop, soonest first, keeping the
// feed-reported delay. maxResults outside (0, 50) falls back to 5.
func (c *Consumer) FetchForStop(ctx context.Context, stopID string, maxResults int) ([]Arrival, error) {
	if maxResults <= 0 || maxResults >= MaxStopResults {
		maxResults = DefaultStopResults
	}

	feed, err := c.fetchFeed(ctx)
	if err != nil || feed == nil {
		return nil, err
	}

	cutoff := c.now().Add(-c.config.StopStaleness)
	var result []Arrival
	c.eachUpdate(feed, func(a Arrival, stu *gtfs.TripUpdate_StopTimeUpdate) {
		if !strings.EqualFold(a.StopID, stopID) || a.Time.Before(cutoff) {
			return
		}
		a.DelaySeconds = feedDelay(stu)
		result = append(result, a)
	})

	sort.SliceStable(result, func(i, j int) bool { return result[i].Time.Before(result[j].Time) })
	if len(result) > maxResults {
		result = result[:maxResults]
	}
	return result, nil
}

func (c *Consumer) eachUpdate(feed *gtfs.FeedMessage, fn func(Arrival, *gtfs.TripUpdate_StopTimeUpdate)) {
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip := tu.GetTrip()
		var direction *int
		if trip != nil && trip.DirectionId != nil {
			d := int(trip.GetDirectionId())
			direction = &d
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if strings.TrimSpace(stopID) == "" {
				continue
			}
			ts, ok := observedTime(stu)
			if !ok {
				continue
			}

			a := Arrival{
				StopID:      stopID,
				TripID:      trip.GetTripId(),
				RouteID:     trip.GetRouteId(),
				DirectionID: direction,
				Time:        time.Unix(ts, 0).In(c.location),
			}
			if seq := stu.GetStopSequence(); seq != 0 {
				n := int(seq)
				a.StopSequence = &n
			}
			fn(a, stu)
		}
	}
}

// observedTime prefers the departure time and falls back to arrival.
func observedTime(stu *gtfs.TripUpdate_StopTimeUpdate) (int64, bool) {
	if t := stu.GetDeparture().GetTime(); t != 0 {
		return t, true
	}
	if t := stu.GetArrival().GetTime(); t != 0 {
		return t, true
	}
	return 0, false
}

func feedDelay(stu *gtfs.TripUpdate_StopTimeUpdate) *int {
	if d := stu.GetDeparture().GetDelay(); d != 0 {
		n := int(d)
		return &n
	}
	if d := stu.GetArrival().GetDelay(); d != 0 {
		n := int(d)
		return &n
	}
	return nil
}

// fetchFeed downloads and decodes the feed. Any failure other than
// cancellation is logged and reported as a nil feed.
func (c *Consumer) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	if !c.config.Configured() {
		c.logger.Warn("Realtime trip updates URL is not configured")
		c.metrics.FeedFetched("unconfigured", 0, 0)
		return nil, nil
	}

	start := time.Now()
	feed, outcome, err := c.download(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.metrics.FeedFetched("cancelled", time.Since(start), 0)
		return nil, ctxErr
	}
	if err != nil {
		c.logger.Error("Failed to fetch GTFS-RT feed",
			"url", c.config.RedactedURL(),
			"outcome", outcome,
			"error", err)
		c.metrics.FeedFetched(outcome, time.Since(start), 0)
		return nil, nil
	}

	updates := 0
	for _, e := range feed.GetEntity() {
		updates += len(e.GetTripUpdate().GetStopTimeUpdate())
	}
	c.metrics.FeedFetched("ok", time.Since(start), updates)
	c.logger.Debug("Fetched feed",
		"entities", len(feed.GetEntity()),
		"stop_time_updates", updates,
		"duration", time.Since(start))

	return feed, nil
}

func (c *Consumer) download(ctx context.Context) (*gtfs.FeedMessage, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.TripUpdatesURL, nil)
	if err != nil {
		return nil, "transport", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/x-protobuf")
	if c.config.APIKeyHeader != "" && c.config.APIKeyValue != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKeyValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "transport", fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "status", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "transport", fmt.Errorf("failed to read response body: %w", err)
	}

	feedMessage := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feedMessage); err != nil {
		return nil, "decode", fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}

	return feedMessage, "ok", nil
}
