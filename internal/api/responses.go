package api

import (
	"time"

	"github.com/ttctransit-data/internal/gtfs-realtime/consumer"
	"github.com/ttctransit-data/internal/gtfs-realtime/processor"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

// Field names follow the JSON the existing web and ESP clients read.

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status             string    `json:"status"`
	Database           string    `json:"database"`
	RealtimeConfigured bool      `json:"realtimeConfigured"`
	Timestamp          time.Time `json:"timestamp"`
	Error              string    `json:"error,omitempty"`
}

type RouteResponse struct {
	RouteID        string `json:"routeId"`
	RouteShortName string `json:"routeShortName"`
	RouteLongName  string `json:"routeLongName"`
	RouteType      *int   `json:"routeType"`
	RouteColor     string `json:"routeColor,omitempty"`
	RouteTextColor string `json:"routeTextColor,omitempty"`
}

func newRouteResponse(r models.Route) RouteResponse {
	return RouteResponse{
		RouteID:        r.RouteID,
		RouteShortName: r.RouteShortName,
		RouteLongName:  r.RouteLongName,
		RouteType:      r.RouteType,
		RouteColor:     r.RouteColor,
		RouteTextColor: r.RouteTextColor,
	}
}

type RouteStopResponse struct {
	StopID       string  `json:"stopId"`
	StopName     string  `json:"stopName"`
	StopLat      float64 `json:"stopLat"`
	StopLon      float64 `json:"stopLon"`
	DirectionID  *int    `json:"directionId"`
	StopSequence int     `json:"stopSequence"`
}

func newRouteStopResponse(s models.RouteStop) RouteStopResponse {
	return RouteStopResponse{
		StopID:       s.StopID,
		StopName:     s.StopName,
		StopLat:      s.StopLat,
		StopLon:      s.StopLon,
		DirectionID:  s.DirectionID,
		StopSequence: s.StopSequence,
	}
}

type TripResponse struct {
	TripID      string `json:"tripId"`
	RouteID     string `json:"routeId"`
	ServiceID   string `json:"serviceId"`
	HeadSign    string `json:"headSign"`
	DirectionID *int   `json:"directionId"`
}

func newTripResponse(t models.Trip) TripResponse {
	return TripResponse{
		TripID:      t.TripID,
		RouteID:     t.RouteID,
		ServiceID:   t.ServiceID,
		HeadSign:    t.TripHeadsign,
		DirectionID: t.DirectionID,
	}
}

type ScheduleEntryResponse struct {
	StopID         string `json:"stopId"`
	TripID         string `json:"tripId"`
	RouteID        string `json:"routeId"`
	RouteShortName string `json:"routeShortName"`
	RouteLongName  string `json:"routeLongName"`
	HeadSign       string `json:"headSign"`
	DirectionID    *int   `json:"directionId"`
	ArrivalTime    string `json:"arrivalTime"`
	DepartureTime  string `json:"departureTime"`
}

func newScheduleEntryResponse(e models.ScheduleEntry) ScheduleEntryResponse {
	return ScheduleEntryResponse{
		StopID:         e.StopID,
		TripID:         e.TripID,
		RouteID:        e.RouteID,
		RouteShortName: e.RouteShortName,
		RouteLongName:  e.RouteLongName,
		HeadSign:       e.TripHeadsign,
		DirectionID:    e.DirectionID,
		ArrivalTime:    e.ArrivalTime,
		DepartureTime:  e.DepartureTime,
	}
}

type NextArrivalResponse struct {
	StopID       string    `json:"stopId"`
	TripID       string    `json:"tripId"`
	RouteID      string    `json:"routeId"`
	HeadSign     string    `json:"headSign"`
	DirectionID  *int      `json:"directionId"`
	ArrivalTime  time.Time `json:"arrivalTime"`
	DelaySeconds *int      `json:"delaySeconds"`
}

func newNextArrivalResponse(a consumer.Arrival, headsign string) NextArrivalResponse {
	return NextArrivalResponse{
		StopID:       a.StopID,
		TripID:       a.TripID,
		RouteID:      a.RouteID,
		HeadSign:     headsign,
		DirectionID:  a.DirectionID,
		ArrivalTime:  a.Time,
		DelaySeconds: a.DelaySeconds,
	}
}

type DelayResponse struct {
	RouteID        string    `json:"routeId"`
	RouteShortName string    `json:"routeShortName"`
	StopID         string    `json:"stopId"`
	StopName       string    `json:"stopName"`
	ScheduledTime  time.Time `json:"scheduledTime"`
	ActualTime     time.Time `json:"actualTime"`
	DelaySeconds   int       `json:"delaySeconds"`
}

func newDelayResponse(d processor.Delay) DelayResponse {
	return DelayResponse{
		RouteID:        d.RouteID,
		RouteShortName: d.RouteShortName,
		StopID:         d.StopID,
		StopName:       d.StopName,
		ScheduledTime:  d.ScheduledTime,
		ActualTime:     d.ActualTime,
		DelaySeconds:   d.DelaySeconds,
	}
}
