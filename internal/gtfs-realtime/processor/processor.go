// Package processor reconciles realtime stop-time updates with the static
// schedule to compute how late each vehicle is.
package processor

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"github.com/ttctransit-data/internal/gtfs-realtime/consumer"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

const (
	DefaultDelayResults = 100
	MaxDelayResults     = 500

	// MaxPlausibleDelay bounds |delay|. Larger values come from service-day
	// boundaries or trips matched against the wrong schedule.
	MaxPlausibleDelay = 4 * time.Hour
)

type ArrivalSource interface {
	FetchAll(ctx context.Context) ([]consumer.Arrival, error)
}

type ScheduleLookup interface {
	RouteNames(ctx context.Context) (map[string]string, error)
	GetStopNames(ctx context.Context) (map[string]string, error)
	GetScheduledDeparture(ctx context.Context, tripID string, stopSequence *int, stopID string) (models.ClockTime, bool, error)
}

// Delay is one realtime arrival matched to its scheduled departure.
type Delay struct {
	RouteID        string
	RouteShortName string
	StopID         string
	StopName       string
	ScheduledTime  time.Time
	ActualTime     time.Time
	DelaySeconds   int
}

type Processor struct {
	arrivals ArrivalSource
	schedule ScheduleLookup
	logger   logger.Logger
	metrics  *metrics.Collector
}

func NewProcessor(arrivals ArrivalSource, schedule ScheduleLookup, log logger.Logger, m *metrics.Collector) *Processor {
	return &Processor{
		arrivals: arrivals,
		schedule: schedule,
		logger:   log.With("component", "reconciler"),
		metrics:  m,
	}
}

// ComputeDelays returns the most delayed arrivals first. maxResults outside
// (0, 500] falls back to 100. Arrivals without a trip, without a scheduled
// counterpart or with an implausible delay are left out. The only error
// returned is the context's.
func (p *Processor) ComputeDelays(ctx context.Context, maxResults int) ([]Delay, error) {
	if maxResults <= 0 || maxResults > MaxDelayResults {
		maxResults = DefaultDelayResults
	}

	arrivals, err := p.arrivals.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(arrivals) == 0 {
		return []Delay{}, nil
	}

	routeNames, err := p.schedule.RouteNames(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("Route names unavailable, using ids", "error", err)
	}
	stopNames, err := p.schedule.GetStopNames(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("Stop names unavailable, using ids", "error", err)
	}

	var (
		delays                          []Delay
		noTrip, unmatched, implausible int
	)
	for _, a := range arrivals {
		if strings.TrimSpace(a.TripID) == "" {
			noTrip++
			p.metrics.Dropped("no_trip")
			continue
		}

		clock, ok, err := p.schedule.GetScheduledDeparture(ctx, a.TripID, a.StopSequence, a.StopID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Scheduled departure lookup failed", "trip_id", a.TripID, "stop_id", a.StopID, "error", err)
			ok = false
		}
		if !ok {
			unmatched++
			p.metrics.Dropped("unmatched")
			continue
		}

		scheduled := ProjectScheduled(clock, a.Time)
		delay := DelaySeconds(a.Time, scheduled)
		if !Plausible(delay) {
			implausible++
			p.metrics.Dropped("implausible")
			continue
		}

		delays = append(delays, Delay{
			RouteID:        a.RouteID,
			RouteShortName: nameOr(routeNames, a.RouteID),
			StopID:         a.StopID,
			StopName:       nameOr(stopNames, a.StopID),
			ScheduledTime:  scheduled,
			ActualTime:     a.Time,
			DelaySeconds:   delay,
		})
	}

	sort.SliceStable(delays, func(i, j int) bool { return delays[i].DelaySeconds > delays[j].DelaySeconds })
	if len(delays) > maxResults {
		delays = delays[:maxResults]
	}
	if delays == nil {
		delays = []Delay{}
	}

	p.metrics.Delays(len(delays))
	p.logger.Debug("Reconciled realtime arrivals",
		"arrivals", len(arrivals),
		"no_trip", noTrip,
		"unmatched", unmatched,
		"implausible", implausible,
		"returned", len(delays))

	return delays, nil
}

// ProjectScheduled places a scheduled time of day on the calendar day of the
// observed instant, in the observed instant's timezone. Times of 24:00:00 or
// later belong to the previous day's service.
func ProjectScheduled(clock models.ClockTime, observed time.Time) time.Time {
	day := observed
	if clock.PastMidnight() {
		day = observed.AddDate(0, 0, -1)
	}
	return clock.On(day, observed.Location())
}

// DelaySeconds is observed minus scheduled in whole seconds, late positive.
func DelaySeconds(observed, scheduled time.Time) int {
	return int(observed.Sub(scheduled) / time.Second)
}

func Plausible(delaySeconds int) bool {
	limit := int(MaxPlausibleDelay / time.Second)
	return delaySeconds <= limit && delaySeconds >= -limit
}

func nameOr(names map[string]string, id string) string {
	if name := strings.TrimSpace(names[id]); name != "" {
		return name
	}
	return id
}
