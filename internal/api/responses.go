package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"shuttle-tracker/internal/eta"
	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/geocode"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/routing"
	"shuttle-tracker/internal/tracker"
	"shuttle-tracker/internal/vehicle"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("resource not found")
	errNotTracked = errors.New("vehicle not tracked")
)

// envelope wraps every response body.
type envelope struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Data        any    `json:"data,omitempty"`
}

func currentTime() int64 { return time.Now().UnixMilli() }

func (a *API) sendData(w http.ResponseWriter, r *http.Request, data any) {
	a.write(w, r, http.StatusOK, envelope{
		Code:        http.StatusOK,
		CurrentTime: currentTime(),
		Text:        "OK",
		Data:        data,
	})
}

func (a *API) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	text := err.Error()
	if status == http.StatusInternalServerError {
		logging.LogError(logging.FromContext(r.Context()), "request failed", err,
			slog.String("path", r.URL.Path))
		text = "internal server error"
	}
	a.write(w, r, status, envelope{Code: status, CurrentTime: currentTime(), Text: text})
}

func (a *API) write(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, planner.ErrPositionUnknown),
		errors.Is(err, planner.ErrInvalidDestination),
		errors.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound),
		errors.Is(err, errNotTracked),
		errors.Is(err, network.ErrUnknownStop),
		errors.Is(err, network.ErrUnknownRoute),
		errors.Is(err, vehicle.ErrUnknownVehicle),
		errors.Is(err, geocode.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, eta.ErrAlreadyPassed):
		return http.StatusConflict
	case errors.Is(err, planner.ErrNoFeasiblePlan),
		errors.Is(err, eta.ErrStopNotServed),
		errors.Is(err, network.ErrNoStopsConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, routing.ErrRoutingUnavailable),
		errors.Is(err, vehicle.ErrPositionFetchFailed),
		errors.Is(err, geocode.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, tracker.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
