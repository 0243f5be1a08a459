// Package display renders upcoming arrivals as short lines for character
// displays such as an ESP32-driven LCD.
package display

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/gtfs-realtime/consumer"
)

const (
	LineWidth = 20

	DefaultLines = 10
	MaxLines     = 50

	separator = " - "
)

type ArrivalSource interface {
	FetchAll(ctx context.Context) ([]consumer.Arrival, error)
}

type NameSource interface {
	RouteNames(ctx context.Context) (map[string]string, error)
	GetTripHeadsigns(ctx context.Context, tripIDs []string) (map[string]string, error)
}

type Renderer struct {
	arrivals ArrivalSource
	names    NameSource
	logger   logger.Logger
	now      func() time.Time
}

func NewRenderer(arrivals ArrivalSource, names NameSource, log logger.Logger) *Renderer {
	return &Renderer{
		arrivals: arrivals,
		names:    names,
		logger:   log.With("component", "display"),
		now:      time.Now,
	}
}

type upcoming struct {
	arrival consumer.Arrival
	minutes int
}

// RenderLines returns at most maxLines lines, each no wider than LineWidth,
// for arrivals at any of stopIDs. Lines with the same label are merged.
// maxLines outside (0, 50] falls back to 10.
func (r *Renderer) RenderLines(ctx context.Context, stopIDs []string, maxLines int) ([]string, error) {
	if maxLines <= 0 || maxLines > MaxLines {
		maxLines = DefaultLines
	}

	stops := make(map[string]struct{}, len(stopIDs))
	for _, id := range stopIDs {
		if id = strings.TrimSpace(id); id != "" {
			stops[strings.ToLower(id)] = struct{}{}
		}
	}
	if len(stops) == 0 {
		return []string{}, nil
	}

	arrivals, err := r.arrivals.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var soon []upcoming
	for _, a := range arrivals {
		if _, ok := stops[strings.ToLower(a.StopID)]; !ok {
			continue
		}
		minutes := int(math.Round(a.Time.Sub(now).Minutes()))
		if minutes <= 0 {
			continue
		}
		soon = append(soon, upcoming{arrival: a, minutes: minutes})
	}
	if len(soon) == 0 {
		return []string{}, nil
	}
	sort.SliceStable(soon, func(i, j int) bool { return soon[i].minutes < soon[j].minutes })

	routeNames, err := r.names.RouteNames(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("Route names unavailable", "error", err)
	}

	seen := make(map[string]struct{})
	var tripIDs []string
	for _, u := range soon {
		if _, ok := seen[u.arrival.TripID]; ok || u.arrival.TripID == "" {
			continue
		}
		seen[u.arrival.TripID] = struct{}{}
		tripIDs = append(tripIDs, u.arrival.TripID)
	}
	headsigns, err := r.names.GetTripHeadsigns(ctx, tripIDs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("Trip headsigns unavailable", "trips", len(tripIDs), "error", err)
	}

	lines := make([]string, 0, maxLines)
	for _, u := range soon {
		if len(lines) >= maxLines {
			break
		}
		label := Label(u.arrival, routeNames, headsigns[u.arrival.TripID])
		lines = append(lines, FormatLine(label, u.minutes))
	}

	return GroupLines(lines), nil
}

// Label is the route variant or short name followed by a one-letter
// direction when one is known.
func Label(a consumer.Arrival, routeNames map[string]string, headsign string) string {
	direction, variant := ParseHeadsign(headsign)
	if direction == "" {
		direction = DirectionFromID(a.DirectionID)
	}

	label := variant
	if label == "" {
		label = strings.TrimSpace(routeNames[a.RouteID])
	}
	if label == "" {
		label = a.RouteID
	}
	if direction != "" {
		label += " " + direction
	}
	return label
}

// ParseHeadsign splits "South - 13A Avenue Rd" into ("S", "13A"). Either part
// is empty when it cannot be determined.
func ParseHeadsign(headsign string) (direction, variant string) {
	word, rest, found := strings.Cut(headsign, separator)
	if !found {
		return "", ""
	}

	switch w := strings.TrimSpace(word); strings.ToLower(w) {
	case "north", "south", "east", "west":
		direction = strings.ToUpper(w[:1])
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		variant = fields[0]
	}
	return direction, variant
}

// DirectionFromID guesses a direction from the feed's direction flag. The
// question mark marks the guess on the display.
func DirectionFromID(id *int) string {
	if id == nil {
		return ""
	}
	switch *id {
	case 0:
		return "E?"
	case 1:
		return "W?"
	case 2:
		return "S?"
	case 3:
		return "N?"
	}
	return ""
}

func FormatLine(label string, minutes int) string {
	line := fmt.Sprintf("%s%s%dm", label, separator, minutes)
	if len(line) > LineWidth {
		line = fmt.Sprintf("%s %dm", label, minutes)
	}
	return line
}

// GroupLines merges lines whose text before " - " is identical, keeping the
// order in which each label first appears. Lines without a separator are
// kept as they are. Every result is cut to LineWidth.
func GroupLines(lines []string) []string {
	type group struct {
		label   string
		minutes []string
		whole   string
	}

	var groups []*group
	byLabel := make(map[string]*group)
	for _, line := range lines {
		label, minutes, found := strings.Cut(line, separator)
		if !found {
			groups = append(groups, &group{whole: line})
			continue
		}
		g, ok := byLabel[label]
		if !ok {
			g = &group{label: label}
			byLabel[label] = g
			groups = append(groups, g)
		}
		g.minutes = append(g.minutes, minutes)
	}

	out := make([]string, 0, len(groups))
	for _, g := range groups {
		line := g.whole
		if g.label != "" || len(g.minutes) > 0 {
			line = g.label + separator + strings.Join(g.minutes, " ")
		}
		out = append(out, truncate(line, LineWidth))
	}
	return out
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width]
}
