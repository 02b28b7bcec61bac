// Package api exposes a planning session over HTTP/JSON under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"github.com/signalsfoundry/linkplanner/internal/planner"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// Prefix is the path prefix for every API route.
	Prefix = "/api/v1"

	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 64 << 10
)

// Server serves one planning session.
type Server struct {
	state   *planner.State
	zones   *planner.ZoneResolver
	log     logging.Logger
	metrics *observability.Collector
}

// NewServer wires the API to a session and its zone resolver. metrics may
// be nil.
func NewServer(state *planner.State, zones *planner.ZoneResolver, metrics *observability.Collector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		state:   state,
		zones:   zones,
		log:     log,
		metrics: metrics,
	}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		full := method + " " + Prefix + path
		mux.Handle(full, s.metrics.Instrument(Prefix+path, h))
	}

	route("GET /towers", s.listTowers)
	route("POST /towers", s.createTower)
	route("GET /towers/{id}", s.getTower)
	route("DELETE /towers/{id}", s.deleteTower)
	route("POST /towers/{id}/select", s.selectTower)
	route("PUT /towers/{id}/frequency", s.editFrequency)

	route("GET /links", s.listLinks)
	route("GET /links/{id}", s.getLink)
	route("DELETE /links/{id}", s.deleteLink)
	route("POST /links/{id}/activate", s.activateLink)

	route("GET /zones", s.listZones)
	route("GET /snapshot", s.getSnapshot)
	route("POST /reset", s.reset)
	route("GET /report.xlsx", s.report)

	return otelhttp.NewHandler(s.withRequestLogger(mux), "linkplanner.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// withRequestLogger attaches a request ID (taken from X-Request-ID when the
// caller sent one) and a request-scoped logger to the context, and echoes
// the ID back in the response.
func (s *Server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := strings.TrimSpace(r.Header.Get(requestIDHeader)); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	return logging.LoggerFromContext(ctx, s.log)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, s.logger(r.Context()), err)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

//
// ---------- Towers ----------
//

type createTowerRequest struct {
	Lat       *float64       `json:"lat"`
	Lng       *float64       `json:"lng"`
	Frequency frequencyField `json:"frequency"`
	Name      string         `json:"name"`
}

func (s *Server) listTowers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Towers())
}

func (s *Server) createTower(w http.ResponseWriter, r *http.Request) {
	var req createTowerRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Lat == nil || req.Lng == nil {
		s.fail(w, r, fmt.Errorf("%w: lat and lng are required", core.ErrInvalidPosition))
		return
	}
	freq, err := req.Frequency.parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.state.AddTower(r.Context(), core.LatLng{Lat: *req.Lat, Lng: *req.Lng}, freq, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", Prefix+"/towers/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTower(w http.ResponseWriter, r *http.Request) {
	t, err := s.state.Tower(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type removedLinksResponse struct {
	RemovedLinks []core.Link `json:"removedLinks"`
}

func (s *Server) deleteTower(w http.ResponseWriter, r *http.Request) {
	removed, err := s.state.RemoveTower(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removedLinksResponse{RemovedLinks: nonNil(removed)})
}

type selectResponse struct {
	Outcome        string     `json:"outcome"`
	PendingTowerID string     `json:"pendingTowerId,omitempty"`
	Link           *core.Link `json:"link,omitempty"`
}

func (s *Server) selectTower(w http.ResponseWriter, r *http.Request) {
	res, err := s.state.SelectOrLinkTower(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := selectResponse{Outcome: res.Outcome.String(), Link: res.Link}
	if pending, ok := s.state.Pending(); ok {
		body.PendingTowerID = pending
	}
	code := http.StatusOK
	if res.Outcome == planner.SelectionLinked {
		code = http.StatusCreated
	}
	writeJSON(w, code, body)
}

type editFrequencyRequest struct {
	Frequency frequencyField `json:"frequency"`
}

type editFrequencyResponse struct {
	Tower        core.Tower  `json:"tower"`
	RemovedLinks []core.Link `json:"removedLinks"`
}

func (s *Server) editFrequency(w http.ResponseWriter, r *http.Request) {
	var req editFrequencyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	freq, err := req.Frequency.parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id := r.PathValue("id")
	removed, err := s.state.EditFrequency(r.Context(), id, freq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.state.Tower(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editFrequencyResponse{Tower: t, RemovedLinks: nonNil(removed)})
}

//
// ---------- Links & zones ----------
//

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Links())
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	l, err := s.state.Link(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteLink(w http.ResponseWriter, r *http.Request) {
	if err := s.state.RemoveLink(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activateLink(w http.ResponseWriter, r *http.Request) {
	zone, err := s.zones.ActivateLink(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Zones())
}

//
// ---------- Session ----------
//

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.state.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
