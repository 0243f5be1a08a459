// Package serviceday decides which scheduled trips run at a stop on a date.
package serviceday

import (
	"context"
	"sort"
	"time"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

// ScheduleSource is the part of the schedule store the resolver reads.
type ScheduleSource interface {
	StopTimesAtStop(ctx context.Context, stopID string) ([]models.ScheduleEntry, error)
	CalendarRules(ctx context.Context) (map[string]models.Calendar, error)
	CalendarExceptions(ctx context.Context, date string) (map[string][]models.ExceptionType, error)
}

// ServiceActive applies the calendar rules for one service on one date.
// An ADDED exception always wins, even over a REMOVED one for the same date.
func ServiceActive(rule *models.Calendar, exceptions []models.ExceptionType, date time.Time) bool {
	removed := false
	for _, e := range exceptions {
		switch e {
		case models.ServiceAdded:
			return true
		case models.ServiceRemoved:
			removed = true
		}
	}
	if removed || rule == nil {
		return false
	}
	return rule.RunsOn(date)
}

type Resolver struct {
	source ScheduleSource
	logger logger.Logger
}

func NewResolver(source ScheduleSource, log logger.Logger) *Resolver {
	return &Resolver{source: source, logger: log.With("component", "serviceday")}
}

// ScheduleForStop returns the visits to stopID by trips whose service runs
// on date, ordered by route, direction (unset first) and arrival time.
// Unknown stops yield an empty result. Times that do not parse are returned
// as empty strings.
func (r *Resolver) ScheduleForStop(ctx context.Context, stopID string, date time.Time) ([]models.ScheduleEntry, error) {
	entries, err := r.source.StopTimesAtStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []models.ScheduleEntry{}, nil
	}

	rules, err := r.source.CalendarRules(ctx)
	if err != nil {
		return nil, err
	}
	exceptions, err := r.source.CalendarExceptions(ctx, models.FormatDate(date))
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool)
	result := make([]models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		on, seen := active[e.ServiceID]
		if !seen {
			var rule *models.Calendar
			if c, ok := rules[e.ServiceID]; ok {
				rule = &c
			}
			on = ServiceActive(rule, exceptions[e.ServiceID], date)
			active[e.ServiceID] = on
		}
		if !on {
			continue
		}
		e.ArrivalTime = models.NormalizeClock(e.ArrivalTime)
		e.DepartureTime = models.NormalizeClock(e.DepartureTime)
		result = append(result, e)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if da, db := directionRank(a.DirectionID), directionRank(b.DirectionID); da != db {
			return da < db
		}
		return arrivalSeconds(a.ArrivalTime) < arrivalSeconds(b.ArrivalTime)
	})

	r.logger.Debug("Resolved stop schedule",
		"stop_id", stopID,
		"date", models.FormatDate(date),
		"candidates", len(entries),
		"active", len(result))

	return result, nil
}

func directionRank(d *int) int {
	if d == nil {
		return -1
	}
	return *d
}

// arrivalSeconds sorts blank times last.
func arrivalSeconds(s string) int {
	c, err := models.ParseClock(s)
	if err != nil {
		return 1 << 30
	}
	return c.Seconds()
}
