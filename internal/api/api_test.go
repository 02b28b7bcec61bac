package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/elevation"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"github.com/signalsfoundry/linkplanner/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type apiFixture struct {
	srv       *httptest.Server
	state     *planner.State
	collector *observability.Collector
}

func newFixture(t *testing.T, elev planner.ElevationProvider) *apiFixture {
	t.Helper()

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	n := 0
	state := planner.NewState(nil,
		planner.WithMetricsRecorder(collector),
		planner.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	zones := planner.NewZoneResolver(state, elev, nil)
	srv := httptest.NewServer(NewServer(state, zones, collector, nil).Handler())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, state: state, collector: collector}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+Prefix+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *apiFixture) createTower(t *testing.T, lat, lng float64, freq string) core.Tower {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/towers", fmt.Sprintf(`{"lat":%v,"lng":%v,"frequency":%q}`, lat, lng, freq))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[core.Tower](t, resp)
}

func (f *apiFixture) link(t *testing.T, a, b string) core.Link {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/towers/"+a+"/select", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/towers/"+b+"/select", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[selectResponse](t, resp)
	require.Equal(t, "linked", body.Outcome)
	require.NotNil(t, body.Link)
	return *body.Link
}

func TestCreateTowerParsesRawFrequency(t *testing.T) {
	f := newFixture(t, nil)

	tw := f.createTower(t, 39.30, -76.60, " 5 ")
	assert.Equal(t, "id-1", tw.ID)
	assert.Equal(t, 5.0, tw.FrequencyGHz)
	assert.Equal(t, core.LatLng{Lat: 39.30, Lng: -76.60}, tw.Position)

	resp := f.do(t, http.MethodPost, "/towers", `{"lat":1,"lng":2,"frequency":2.4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, Prefix+"/towers/id-2", resp.Header.Get("Location"))

	towers := decode[[]core.Tower](t, f.do(t, http.MethodGet, "/towers", ""))
	assert.Len(t, towers, 2)
}

func TestCreateTowerRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	cases := map[string]string{
		"empty frequency":   `{"lat":1,"lng":2,"frequency":""}`,
		"missing frequency": `{"lat":1,"lng":2}`,
		"non-numeric":       `{"lat":1,"lng":2,"frequency":"abc"}`,
		"zero":              `{"lat":1,"lng":2,"frequency":"0"}`,
		"negative":          `{"lat":1,"lng":2,"frequency":"-3"}`,
		"infinite":          `{"lat":1,"lng":2,"frequency":"Inf"}`,
		"latitude range":    `{"lat":91,"lng":2,"frequency":"5"}`,
		"missing position":  `{"frequency":"5"}`,
		"malformed json":    `{"lat":`,
		"unknown field":     `{"lat":1,"lng":2,"frequency":"5","height":30}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/towers", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			errBody := decode[errorBody](t, resp)
			assert.NotEmpty(t, errBody.Error)
		})
	}
	assert.Empty(t, f.state.Towers())
}

func TestSelectionFlow(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createTower(t, 39.30, -76.60, "5")
	b := f.createTower(t, 39.31, -76.59, "5")
	c := f.createTower(t, 39.32, -76.58, "2.4")

	resp := f.do(t, http.MethodPost, "/towers/"+a.ID+"/select", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[selectResponse](t, resp)
	assert.Equal(t, "selected", body.Outcome)
	assert.Equal(t, a.ID, body.PendingTowerID)

	resp = f.do(t, http.MethodPost, "/towers/"+a.ID+"/select", "")
	body = decode[selectResponse](t, resp)
	assert.Equal(t, "deselected", body.Outcome)
	assert.Empty(t, body.PendingTowerID)

	l := f.link(t, a.ID, b.ID)
	assert.Equal(t, a.ID, l.FromTowerID)
	assert.Equal(t, b.ID, l.ToTowerID)

	f.do(t, http.MethodPost, "/towers/"+a.ID+"/select", "")
	resp = f.do(t, http.MethodPost, "/towers/"+c.ID+"/select", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "frequency mismatch")

	_, pending := f.state.Pending()
	assert.False(t, pending)

	resp = f.do(t, http.MethodPost, "/towers/nope/select", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	links := decode[[]planner.LinkView](t, f.do(t, http.MethodGet, "/links", ""))
	require.Len(t, links, 1)
	assert.InDelta(t, 1406, links[0].DistanceMeters, 10)
	assert.Greater(t, links[0].PathLossDB, 0.0)
}

func TestActivateLinkReturnsZone(t *testing.T) {
	f := newFixture(t, elevation.Static{Meters: 87})
	a := f.createTower(t, 39.30, -76.60, "5")
	b := f.createTower(t, 39.31, -76.59, "5")
	l := f.link(t, a.ID, b.ID)

	resp := f.do(t, http.MethodPost, "/links/"+l.ID+"/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	zone := decode[core.Zone](t, resp)
	assert.Equal(t, l.ID, zone.LinkID)
	assert.InDelta(t, 4.59, zone.RadiusMeters, 0.05)
	assert.InDelta(t, 39.305, zone.Midpoint.Lat, 1e-9)
	assert.InDelta(t, -76.595, zone.Midpoint.Lng, 1e-9)
	require.NotNil(t, zone.ElevationMeters)
	assert.Equal(t, 87.0, *zone.ElevationMeters)

	zones := decode[[]core.Zone](t, f.do(t, http.MethodGet, "/zones", ""))
	assert.Len(t, zones, 1)

	resp = f.do(t, http.MethodPost, "/links/missing/activate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateLinkWithoutElevation(t *testing.T) {
	f := newFixture(t, elevation.Disabled())
	a := f.createTower(t, 0, 0, "5")
	b := f.createTower(t, 0, 0.01, "5")
	l := f.link(t, a.ID, b.ID)

	resp := f.do(t, http.MethodPost, "/links/"+l.ID+"/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.NotContains(t, raw, "elevationMeters")
	assert.Contains(t, raw, "radiusMeters")
}

func TestEditFrequencyRemovesMismatchedLinks(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createTower(t, 0, 0, "5")
	b := f.createTower(t, 0, 0.01, "5")
	c := f.createTower(t, 0, 0.02, "5")
	ab := f.link(t, a.ID, b.ID)
	bc := f.link(t, b.ID, c.ID)

	resp := f.do(t, http.MethodPut, "/towers/"+c.ID+"/frequency", `{"frequency":"2.4"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[editFrequencyResponse](t, resp)
	assert.Equal(t, 2.4, body.Tower.FrequencyGHz)
	require.Len(t, body.RemovedLinks, 1)
	assert.Equal(t, bc.ID, body.RemovedLinks[0].ID)

	links := decode[[]planner.LinkView](t, f.do(t, http.MethodGet, "/links", ""))
	require.Len(t, links, 1)
	assert.Equal(t, ab.ID, links[0].ID)

	resp = f.do(t, http.MethodPut, "/towers/"+c.ID+"/frequency", `{"frequency":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPut, "/towers/missing/frequency", `{"frequency":"5"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteTowerAndLink(t *testing.T) {
	f := newFixture(t, elevation.Static{Meters: 1})
	a := f.createTower(t, 0, 0, "5")
	b := f.createTower(t, 0, 0.01, "5")
	c := f.createTower(t, 0, 0.02, "5")
	ab := f.link(t, a.ID, b.ID)
	bc := f.link(t, b.ID, c.ID)
	f.do(t, http.MethodPost, "/links/"+ab.ID+"/activate", "")

	resp := f.do(t, http.MethodDelete, "/links/"+ab.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/links/"+ab.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, f.state.Zones())

	resp = f.do(t, http.MethodDelete, "/towers/"+c.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[removedLinksResponse](t, resp)
	require.Len(t, body.RemovedLinks, 1)
	assert.Equal(t, bc.ID, body.RemovedLinks[0].ID)

	resp = f.do(t, http.MethodDelete, "/towers/"+c.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, f.state.CheckInvariants())
}

func TestSnapshotAndReset(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createTower(t, 0, 0, "5")
	f.createTower(t, 0, 0.01, "5")
	f.do(t, http.MethodPost, "/towers/"+a.ID+"/select", "")

	snap := decode[planner.Snapshot](t, f.do(t, http.MethodGet, "/snapshot", ""))
	assert.Len(t, snap.Towers, 2)
	assert.Empty(t, snap.Links)
	assert.Equal(t, a.ID, snap.Pending)

	resp := f.do(t, http.MethodPost, "/reset", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap = decode[planner.Snapshot](t, f.do(t, http.MethodGet, "/snapshot", ""))
	assert.Empty(t, snap.Towers)
	assert.Empty(t, snap.Pending)
}

func TestReportWorkbook(t *testing.T) {
	f := newFixture(t, elevation.Static{Meters: 42})
	a := f.createTower(t, 39.30, -76.60, "5")
	b := f.createTower(t, 39.31, -76.59, "5")
	l := f.link(t, a.ID, b.ID)
	f.do(t, http.MethodPost, "/links/"+l.ID+"/activate", "")

	resp := f.do(t, http.MethodGet, "/report.xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{towersSheet, linksSheet, zonesSheet}, wb.GetSheetList())

	towers, err := wb.GetRows(towersSheet)
	require.NoError(t, err)
	require.Len(t, towers, 3)
	assert.Equal(t, "ID", towers[0][0])
	assert.Equal(t, a.ID, towers[1][0])
	assert.Equal(t, b.ID, towers[2][0])

	links, err := wb.GetRows(linksSheet)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, l.ID, links[1][0])

	zones, err := wb.GetRows(zonesSheet)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, l.ID, zones[1][0])
	assert.Equal(t, "42", zones[1][6])
}

func TestWriteRowsReportsSheetErrors(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	err := writeRows(f, "missing", [][]any{{"ID"}, {"t1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write missing row 1")

	require.NoError(t, writeRows(f, "Sheet1", [][]any{{"ID"}, {"t1"}}))
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID"}, {"t1"}}, rows)
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+Prefix+"/towers", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-123")
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))

	resp2 := f.do(t, http.MethodGet, "/towers", "")
	assert.NotEmpty(t, resp2.Header.Get(requestIDHeader))
}

func TestRequestsAreInstrumented(t *testing.T) {
	f := newFixture(t, nil)
	f.createTower(t, 0, 0, "5")
	f.do(t, http.MethodDelete, "/towers/missing", "")

	created := f.collector.HTTPRequests.WithLabelValues(http.MethodPost, Prefix+"/towers", "201")
	assert.Equal(t, 1.0, testutil.ToFloat64(created))
	notFound := f.collector.HTTPRequests.WithLabelValues(http.MethodDelete, Prefix+"/towers/{id}", "404")
	assert.Equal(t, 1.0, testutil.ToFloat64(notFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.Towers))
}

func TestToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("wrap: %w", core.ErrInvalidFrequency), http.StatusBadRequest},
		{core.ErrInvalidPosition, http.StatusBadRequest},
		{core.ErrTowerNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", core.ErrLinkNotFound), http.StatusNotFound},
		{core.ErrFrequencyMismatch, http.StatusConflict},
		{fmt.Errorf("x: %w", core.ErrZoneReset), http.StatusConflict},
		{errBadRequest, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, toHTTPStatus(tc.err), "err=%v", tc.err)
	}
}
