package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const dateParamLayout = "2006-01-02"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("TTC transit data API is running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:             "ok",
		Database:           "connected",
		RealtimeConfigured: s.realtime.Configured(),
		Timestamp:          s.now().UTC(),
	}
	status := http.StatusOK
	if err := s.db.Ping(ctx); err != nil {
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.store.ListRoutes(r.Context())
	if s.failed(w, r, err, "Failed to list routes") {
		return
	}

	resp := make([]RouteResponse, 0, len(routes))
	for _, route := range routes {
		resp = append(resp, newRouteResponse(route))
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	route, err := s.store.GetRoute(r.Context(), routeID)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Error("Failed to get route", "route_id", routeID, "error", err)
		route = nil
	}
	if route == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, newRouteResponse(*route))
}

func (s *Server) handleRouteStops(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	stops, err := s.store.ListStopsForRoute(r.Context(), routeID)
	if s.failed(w, r, err, "Failed to list stops for route", "route_id", routeID) {
		return
	}

	resp := make([]RouteStopResponse, 0, len(stops))
	for _, stop := range stops {
		resp = append(resp, newRouteStopResponse(stop))
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRouteTrips(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	trips, err := s.store.ListTripsForRoute(r.Context(), routeID)
	if s.failed(w, r, err, "Failed to list trips for route", "route_id", routeID) {
		return
	}

	resp := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		resp = append(resp, newTripResponse(trip))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStopSchedule(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")
	date := s.serviceDate(r.URL.Query().Get("date"))

	entries, err := s.resolver.ScheduleForStop(r.Context(), stopID, date)
	if s.failed(w, r, err, "Failed to resolve stop schedule", "stop_id", stopID) {
		return
	}

	resp := make([]ScheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newScheduleEntryResponse(e))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextArrivals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stopID := chi.URLParam(r, "stopId")

	arrivals, err := s.realtime.NextArrivals(ctx, stopID, intParam(r, "max"))
	if err != nil {
		return // cancelled
	}

	tripIDs := make([]string, 0, len(arrivals))
	for _, a := range arrivals {
		tripIDs = append(tripIDs, a.TripID)
	}
	headsigns := map[string]string{}
	if len(tripIDs) > 0 {
		headsigns, err = s.store.GetTripHeadsigns(ctx, tripIDs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Trip headsigns unavailable", "stop_id", stopID, "error", err)
		}
	}

	resp := make([]NextArrivalResponse, 0, len(arrivals))
	for _, a := range arrivals {
		resp = append(resp, newNextArrivalResponse(a, headsigns[a.TripID]))
	}
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelays(w http.ResponseWriter, r *http.Request) {
	delays, err := s.realtime.Delays(r.Context(), intParam(r, "max"))
	if err != nil {
		return // cancelled
	}

	resp := make([]DelayResponse, 0, len(delays))
	for _, d := range delays {
		resp = append(resp, newDelayResponse(d))
	}
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBoard serves plain text lines for small character displays. An
// empty stop list or no upcoming arrivals gives an empty body.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	stopIDs := splitStops(r.URL.Query().Get("stops"))

	lines, err := s.realtime.Board(r.Context(), stopIDs, intParam(r, "max"))
	if err != nil {
		return // cancelled
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strings.Join(lines, "\n")))
}

// failed logs err and answers with an empty JSON list. It reports whether the
// handler should stop; cancelled requests get no response at all.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, err error, msg string, fields ...interface{}) bool {
	if err == nil {
		return false
	}
	if r.Context().Err() != nil {
		return true
	}
	s.logger.Error(msg, append(fields, "error", err)...)
	s.writeJSON(w, http.StatusOK, []struct{}{})
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

// serviceDate parses YYYY-MM-DD in the agency timezone. Missing or invalid
// values mean today.
func (s *Server) serviceDate(value string) time.Time {
	loc := s.config.Location
	if value != "" {
		if d, err := time.ParseInLocation(dateParamLayout, value, loc); err == nil {
			return d
		}
	}
	y, m, d := s.now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// intParam returns 0 for a missing or malformed value; callers clamp.
func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

// splitStops splits a comma separated list, dropping blanks and
// case-insensitive duplicates.
func splitStops(value string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}
