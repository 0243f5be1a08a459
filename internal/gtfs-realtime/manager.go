package gtfs_realtime

import (
	"context"
	"net/url"
	"time"

	"github.com/ttctransit-data/internal/common/config"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"github.com/ttctransit-data/internal/gtfs-realtime/consumer"
	"github.com/ttctransit-data/internal/gtfs-realtime/display"
	"github.com/ttctransit-data/internal/gtfs-realtime/processor"
)

// Schedule is the part of the schedule store realtime answers depend on.
type Schedule interface {
	processor.ScheduleLookup
	display.NameSource
}

// Manager owns the realtime feed consumer, the reconciler and the display
// renderer. Every call fetches the feed afresh; nothing runs in the
// background.
type Manager struct {
	config    config.GTFSRealtimeConfig
	logger    logger.Logger
	consumer  *consumer.Consumer
	processor *processor.Processor
	renderer  *display.Renderer
}

func NewManager(cfg config.GTFSRealtimeConfig, loc *time.Location, schedule Schedule, log logger.Logger, m *metrics.Collector) *Manager {
	c := consumer.NewConsumer(cfg, loc, log, m)

	mgr := &Manager{
		config:    cfg,
		logger:    log.With("component", "realtime_manager"),
		consumer:  c,
		processor: processor.NewProcessor(c, schedule, log, m),
		renderer:  display.NewRenderer(c, schedule, log),
	}
	mgr.validateConfig()
	return mgr
}

// Configured reports whether a feed URL is set. Without one every realtime
// answer is empty.
func (m *Manager) Configured() bool {
	return m.config.Configured()
}

// NextArrivals returns the next updates for one stop, soonest first.
func (m *Manager) NextArrivals(ctx context.Context, stopID string, maxResults int) ([]consumer.Arrival, error) {
	arrivals, err := m.consumer.FetchForStop(ctx, stopID, maxResults)
	if err != nil {
		return nil, err
	}
	if arrivals == nil {
		arrivals = []consumer.Arrival{}
	}
	return arrivals, nil
}

func (m *Manager) Delays(ctx context.Context, maxResults int) ([]processor.Delay, error) {
	return m.processor.ComputeDelays(ctx, maxResults)
}

// Board renders the display lines for a set of stops.
func (m *Manager) Board(ctx context.Context, stopIDs []string, maxLines int) ([]string, error) {
	return m.renderer.RenderLines(ctx, stopIDs, maxLines)
}

func (m *Manager) validateConfig() {
	if !m.config.Configured() {
		m.logger.Warn("REALTIME_TRIP_UPDATES_URL is not set; realtime endpoints will return empty results")
		return
	}
	if _, err := url.ParseRequestURI(m.config.TripUpdatesURL); err != nil {
		m.logger.Warn("Realtime trip updates URL does not parse", "error", err)
	}
	if (m.config.APIKeyHeader == "") != (m.config.APIKeyValue == "") {
		m.logger.Warn("Realtime API key header and value must be set together; sending no key")
	}

	m.logger.Info("Realtime feed configured",
		"url", m.config.RedactedURL(),
		"timeout", m.config.Timeout,
		"all_stops_staleness", m.config.AllStopsStaleness,
		"stop_staleness", m.config.StopStaleness)
}
