package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Elevation lookup outcomes used as the "outcome" label.
const (
	ElevationOK          = "ok"
	ElevationCacheHit    = "cache_hit"
	ElevationUnavailable = "unavailable"
	ElevationError       = "error"
)

// Collector bundles Prometheus metrics for the planner API, the planning
// session state and the elevation client.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Towers prometheus.Gauge
	Links  prometheus.Gauge
	Zones  prometheus.Gauge

	ElevationLookups *prometheus.CounterVec
}

// NewCollector registers planner Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_http_requests_total",
		Help: "Total number of handled planner API requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "code"}), "planner_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_http_request_duration_seconds",
		Help:    "Planner API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"}), "planner_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	towers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_towers",
		Help: "Current number of towers in the planning session.",
	}), "planner_towers")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_links",
		Help: "Current number of links in the planning session.",
	}), "planner_links")
	if err != nil {
		return nil, err
	}
	zones, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_fresnel_zones",
		Help: "Current number of displayed Fresnel zones.",
	}), "planner_fresnel_zones")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_elevation_lookups_total",
		Help: "Elevation lookups, labeled by outcome (ok, cache_hit, unavailable, error).",
	}, []string{"outcome"}), "planner_elevation_lookups_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
		Towers:           towers,
		Links:            links,
		Zones:            zones,
		ElevationLookups: lookups,
	}, nil
}

// Instrument wraps h so that every request records a count and a latency
// sample under the given route label.
func (c *Collector) Instrument(route string, h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetPlannerCounts satisfies the planner's MetricsRecorder interface so the
// session state can drive gauge values directly from its mutators.
func (c *Collector) SetPlannerCounts(towers, links, zones int) {
	if c == nil {
		return
	}
	if c.Towers != nil {
		c.Towers.Set(float64(towers))
	}
	if c.Links != nil {
		c.Links.Set(float64(links))
	}
	if c.Zones != nil {
		c.Zones.Set(float64(zones))
	}
}

// ObserveElevationLookup counts one elevation lookup outcome.
func (c *Collector) ObserveElevationLookup(outcome string) {
	if c == nil || c.ElevationLookups == nil {
		return
	}
	c.ElevationLookups.WithLabelValues(outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
