package models

import "time"

type Agency struct {
	AgencyID       string
	AgencyName     string
	AgencyURL      string
	AgencyTimezone string
	AgencyLang     string
	AgencyFareURL  string
}

type Stop struct {
	StopID        string  `json:"stop_id"`
	StopName      string  `json:"stop_name"`
	StopLat       float64 `json:"stop_lat"`
	StopLon       float64 `json:"stop_lon"`
	LocationType  int     `json:"-"`
	ParentStation string  `json:"-"`
}

type Route struct {
	RouteID        string `json:"route_id"`
	AgencyID       string `json:"-"`
	RouteShortName string `json:"route_short_name"`
	RouteLongName  string `json:"route_long_name"`
	RouteType      *int   `json:"route_type"`
	RouteColor     string `json:"route_color,omitempty"`
	RouteTextColor string `json:"route_text_color,omitempty"`
}

// DisplayName is the short name, falling back to the long name and then the id.
func (r Route) DisplayName() string {
	switch {
	case r.RouteShortName != "":
		return r.RouteShortName
	case r.RouteLongName != "":
		return r.RouteLongName
	default:
		return r.RouteID
	}
}

type Trip struct {
	TripID       string `json:"trip_id"`
	RouteID      string `json:"route_id"`
	ServiceID    string `json:"service_id"`
	TripHeadsign string `json:"trip_headsign"`
	DirectionID  *int   `json:"direction_id"`
}

type StopTime struct {
	TripID        string
	StopID        string
	StopSequence  int
	ArrivalTime   string // HH:MM:SS, hour may exceed 23
	DepartureTime string
	PickupType    int
	DropOffType   int
}

// Calendar is a weekly service pattern. Days is indexed by time.Weekday,
// so Days[time.Sunday] is the sunday column.
type Calendar struct {
	ServiceID string
	Days      [7]bool
	StartDate time.Time
	EndDate   time.Time
}

// Covers reports whether date falls inside the inclusive date range.
func (c Calendar) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(c.StartDate)) && !d.After(DateOnly(c.EndDate))
}

// RunsOn reports whether the weekly pattern includes date.
func (c Calendar) RunsOn(date time.Time) bool {
	return c.Covers(date) && c.Days[date.Weekday()]
}

type ExceptionType int

const (
	ServiceAdded   ExceptionType = 1
	ServiceRemoved ExceptionType = 2
)

type CalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType ExceptionType
}

// ScheduleEntry is one scheduled visit of a trip to a stop on a service day.
type ScheduleEntry struct {
	StopID         string `json:"stop_id"`
	TripID         string `json:"trip_id"`
	RouteID        string `json:"route_id"`
	RouteShortName string `json:"route_short_name"`
	RouteLongName  string `json:"route_long_name"`
	ServiceID      string `json:"-"`
	TripHeadsign   string `json:"trip_headsign"`
	DirectionID    *int   `json:"direction_id"`
	ArrivalTime    string `json:"arrival_time"`
	DepartureTime  string `json:"departure_time"`
}

// RouteStop is a stop on the canonical pattern of one route direction.
type RouteStop struct {
	Stop
	DirectionID  *int `json:"direction_id"`
	StopSequence int  `json:"stop_sequence"`
}

const dateLayout = "20060102"

// ParseDate parses a GTFS YYYYMMDD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate renders the calendar date of t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// DateOnly strips the clock and zone, keeping the calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
