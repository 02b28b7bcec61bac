package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestInstrumentRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	h := collector.Instrument("POST /api/v1/towers", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/towers", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("POST", "POST /api/v1/towers", "201")); got != 1 {
		t.Fatalf("planner_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "planner_http_request_duration_seconds", map[string]string{
		"method": "POST",
		"route":  "POST /api/v1/towers",
	}); count != 1 {
		t.Fatalf("planner_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestInstrumentRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	h := collector.Instrument("POST /api/v1/towers/{id}/select", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mismatch", http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/towers/t1/select", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("POST", "POST /api/v1/towers/{id}/select", "409")); got != 1 {
		t.Fatalf("planner_http_requests_total error label = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.SetPlannerCounts(1, 2, 3)
	c.ObserveElevationLookup(ElevationOK)
	inner := http.NotFoundHandler()
	if c.Instrument("x", inner) == nil {
		t.Fatalf("Instrument() on nil collector returned nil handler")
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector second registration: %v", err)
	}
	first.ObserveElevationLookup(ElevationCacheHit)
	if got := testutil.ToFloat64(second.ElevationLookups.WithLabelValues(ElevationCacheHit)); got != 1 {
		t.Fatalf("shared elevation counter = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesPlannerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.SetPlannerCounts(3, 4, 5)
	collector.ObserveElevationLookup(ElevationUnavailable)
	collector.HTTPRequests.WithLabelValues("GET", "GET /api/v1/towers", "200").Inc()
	collector.HTTPDurations.WithLabelValues("GET", "GET /api/v1/towers").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"planner_http_requests_total",
		"planner_http_request_duration_seconds",
		"planner_towers 3",
		"planner_links 4",
		"planner_fresnel_zones 5",
		`planner_elevation_lookups_total{outcome="unavailable"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
