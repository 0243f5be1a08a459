package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on a private registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches       *prometheus.CounterVec // outcome: ok|unconfigured|transport|status|decode|cancelled
	FeedFetchDuration prometheus.Histogram
	FeedArrivals      prometheus.Counter

	ReconcileDropped *prometheus.CounterVec // reason: no_trip|unmatched|implausible
	DelaysReturned   prometheus.Counter

	HTTPDuration *prometheus.HistogramVec // route, code

	ImportRuns       *prometheus.CounterVec // outcome: imported|skipped|failed
	ActiveGeneration prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttc_realtime_fetches_total",
			Help: "Realtime feed fetches by outcome.",
		}, []string{"outcome"}),
		FeedFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ttc_realtime_fetch_duration_seconds",
			Help:    "Time to download and decode the realtime feed.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FeedArrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttc_realtime_arrivals_total",
			Help: "Stop-time updates decoded into arrivals.",
		}),
		ReconcileDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttc_reconcile_dropped_total",
			Help: "Realtime arrivals dropped during reconciliation.",
		}, []string{"reason"}),
		DelaysReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttc_reconcile_delays_total",
			Help: "Reconciled delays returned to callers.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ttc_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
		ImportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttc_static_import_runs_total",
			Help: "Static schedule import runs by outcome.",
		}, []string{"outcome"}),
		ActiveGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ttc_static_active_version",
			Help: "Version id of the schedule generation being served.",
		}),
	}

	reg.MustRegister(
		c.FeedFetches, c.FeedFetchDuration, c.FeedArrivals,
		c.ReconcileDropped, c.DelaysReturned,
		c.HTTPDuration,
		c.ImportRuns, c.ActiveGeneration,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) FeedFetched(outcome string, d time.Duration, arrivals int) {
	if c == nil {
		return
	}
	c.FeedFetches.WithLabelValues(outcome).Inc()
	c.FeedFetchDuration.Observe(d.Seconds())
	c.FeedArrivals.Add(float64(arrivals))
}

func (c *Collector) Dropped(reason string) {
	if c == nil {
		return
	}
	c.ReconcileDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) Delays(n int) {
	if c == nil {
		return
	}
	c.DelaysReturned.Add(float64(n))
}

func (c *Collector) ObserveHTTP(route, code string, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPDuration.WithLabelValues(route, code).Observe(d.Seconds())
}

func (c *Collector) ImportFinished(outcome string, versionID int) {
	if c == nil {
		return
	}
	c.ImportRuns.WithLabelValues(outcome).Inc()
	if versionID > 0 {
		c.ActiveGeneration.Set(float64(versionID))
	}
}
