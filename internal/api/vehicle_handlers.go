package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shuttle-tracker/internal/eta"
	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/tracker"
	"shuttle-tracker/internal/vehicle"
)

// vehicleID reads and checks the :id path parameter.
func (a *API) vehicleID(r *http.Request) (string, error) {
	id := param(r, "id")
	if !a.knownVehicle(id) {
		return "", fmt.Errorf("%w: %q", vehicle.ErrUnknownVehicle, id)
	}
	return id, nil
}

// current returns the tracked snapshot of id, or a one-shot read from the
// position source when id has no state yet.
func (a *API) current(ctx context.Context, id string) (tracker.Snapshot, error) {
	snap, ok := a.Tracker.Snapshot(id)
	if ok && snap.State != nil {
		return snap, nil
	}
	st, err := a.Vehicles.Fetch(ctx, id)
	if err != nil {
		return tracker.Snapshot{}, err
	}
	return tracker.Snapshot{
		VehicleID: id,
		Tracking:  ok && snap.Tracking,
		State:     &st,
		Direction: a.Network.ResolveDirection(id, st.Direction),
		Track:     []geo.Point{},
		UpdatedAt: st.FetchedAt,
	}, nil
}

func (a *API) vehicleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.vehicleID(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	snap, err := a.current(r.Context(), id)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, snap)
}

type trackingResponse struct {
	VehicleID string `json:"vehicleId"`
	Tracking  bool   `json:"tracking"`
}

func (a *API) startTrackingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.vehicleID(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	if err := a.Tracker.Start(id); err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, trackingResponse{VehicleID: id, Tracking: true})
}

func (a *API) stopTrackingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.vehicleID(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	if !a.Tracker.Stop(id) {
		a.sendError(w, r, fmt.Errorf("%w: %s", errNotTracked, id))
		return
	}
	a.sendData(w, r, trackingResponse{VehicleID: id, Tracking: false})
}

type etaResponse struct {
	eta.Result
	Clock string `json:"clock,omitempty"`
}

// etaHandler estimates arrival at ?stop=, or at the stop nearest the rider's
// ?lat=&lon=.
func (a *API) etaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.vehicleID(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	stop, err := a.targetStop(r)
	if err != nil {
		a.observeETA(err, "")
		a.sendError(w, r, err)
		return
	}
	snap, err := a.current(r.Context(), id)
	if err != nil {
		a.observeETA(err, "")
		a.sendError(w, r, err)
		return
	}
	res, err := a.ETA.Estimate(r.Context(), *snap.State, snap.Direction, stop)
	a.observeETA(err, res.Status)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, etaResponse{Result: res, Clock: res.Clock()})
}

func (a *API) targetStop(r *http.Request) (string, error) {
	if stop := strings.TrimSpace(r.URL.Query().Get("stop")); stop != "" {
		if _, ok := a.Network.Stop(stop); !ok {
			return "", fmt.Errorf("%w: %q", network.ErrUnknownStop, stop)
		}
		return stop, nil
	}
	rider, err := riderParam(r)
	if err != nil {
		return "", err
	}
	s, err := a.Network.NearestStop(rider)
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

func (a *API) observeETA(err error, status eta.Status) {
	if a.Metrics == nil {
		return
	}
	outcome := string(status)
	switch {
	case err == nil:
	case errors.Is(err, eta.ErrAlreadyPassed):
		outcome = "passed"
	case errors.Is(err, eta.ErrStopNotServed):
		outcome = "not_served"
	case errors.Is(err, planner.ErrPositionUnknown):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	a.Metrics.ETAObserve(outcome)
}
