// Package api serves the schedule and realtime data over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/internal/common/metrics"
	"github.com/ttctransit-data/internal/gtfs-realtime/consumer"
	"github.com/ttctransit-data/internal/gtfs-realtime/processor"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

type ScheduleStore interface {
	ListRoutes(ctx context.Context) ([]models.Route, error)
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)
	ListStopsForRoute(ctx context.Context, routeID string) ([]models.RouteStop, error)
	ListTripsForRoute(ctx context.Context, routeID string) ([]models.Trip, error)
	GetTripHeadsigns(ctx context.Context, tripIDs []string) (map[string]string, error)
}

type ScheduleResolver interface {
	ScheduleForStop(ctx context.Context, stopID string, date time.Time) ([]models.ScheduleEntry, error)
}

type Realtime interface {
	Configured() bool
	NextArrivals(ctx context.Context, stopID string, maxResults int) ([]consumer.Arrival, error)
	Delays(ctx context.Context, maxResults int) ([]processor.Delay, error)
	Board(ctx context.Context, stopIDs []string, maxLines int) ([]string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	AllowedOrigins []string
	Location       *time.Location
	RequestTimeout time.Duration
}

type Server struct {
	config   Config
	store    ScheduleStore
	resolver ScheduleResolver
	realtime Realtime
	db       Pinger
	metrics  *metrics.Collector
	logger   logger.Logger
	now      func() time.Time
}

func NewServer(cfg Config, store ScheduleStore, resolver ScheduleResolver, realtime Realtime, db Pinger, m *metrics.Collector, log logger.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		config:   cfg,
		store:    store,
		resolver: resolver,
		realtime: realtime,
		db:       db,
		metrics:  m,
		logger:   log.With("component", "api"),
		now:      time.Now,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/routes", s.handleListRoutes)
		r.Get("/routes/{routeId}", s.handleGetRoute)
		r.Get("/routes/{routeId}/stops", s.handleRouteStops)
		r.Get("/routes/{routeId}/trips", s.handleRouteTrips)

		r.Get("/stops/{stopId}/schedule", s.handleStopSchedule)
		r.Get("/stops/{stopId}/next", s.handleNextArrivals)

		r.Get("/realtime/delays", s.handleDelays)
		r.Get("/esp/next.txt", s.handleBoard)
	})

	return r
}

// requestLogger logs each request and records its latency under the matched
// route pattern, so path parameters do not explode the label set.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		s.metrics.ObserveHTTP(pattern, strconv.Itoa(status), duration)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", pattern,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", duration,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
