package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/linkplanner/core"
	"github.com/signalsfoundry/linkplanner/internal/logging"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// toHTTPStatus maps planner errors onto HTTP status codes.
func toHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, core.ErrTowerNotFound),
		errors.Is(err, core.ErrLinkNotFound):
		return http.StatusNotFound

	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidPosition),
		errors.Is(err, core.ErrInvalidDistance),
		errors.Is(err, core.ErrSameTower),
		errors.Is(err, core.ErrEmptyTowerID),
		errors.Is(err, core.ErrEmptyLinkID):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrFrequencyMismatch),
		errors.Is(err, core.ErrTowerExists),
		errors.Is(err, core.ErrLinkExists),
		errors.Is(err, core.ErrZoneReset):
		return http.StatusConflict

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(ctx context.Context, w http.ResponseWriter, log logging.Logger, err error) {
	code := toHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logging.Err(err))
	} else {
		log.Debug(ctx, "request rejected", logging.Int("status", code), logging.Err(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
