package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/geocode"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/routing"
	"shuttle-tracker/internal/trip"
)

type planResponse struct {
	ID          uuid.UUID                  `json:"id"`
	Entry       string                     `json:"entry"`
	Exit        string                     `json:"exit"`
	Transfer    string                     `json:"transfer,omitempty"`
	Segments    []planner.Segment          `json:"segments"`
	Summary     string                     `json:"summary"`
	Legs        []trip.Leg                 `json:"legs"`
	GeoJSON     *geojson.FeatureCollection `json:"geojson"`
	Destination *geocode.Place             `json:"destination,omitempty"`
}

// riderParam reads the rider's lat/lon. Missing or malformed coordinates
// block planning as an unknown position.
func riderParam(r *http.Request) (geo.Point, error) {
	p, ok, err := pointParam(r.URL.Query(), "lat", "lon")
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", planner.ErrPositionUnknown, err)
	}
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: lat and lon are required", planner.ErrPositionUnknown)
	}
	return p, nil
}

func (a *API) planHandler(w http.ResponseWriter, r *http.Request) {
	rider, err := riderParam(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	dest, ok, err := pointParam(r.URL.Query(), "toLat", "toLon")
	if err == nil && !ok {
		err = errors.New("toLat and toLon are required")
	}
	if err != nil {
		a.sendError(w, r, fmt.Errorf("%w: %v", planner.ErrInvalidDestination, err))
		return
	}
	resp, err := a.planTrip(r.Context(), rider, dest)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, resp)
}

func (a *API) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		a.sendError(w, r, fmt.Errorf("%w: q is required", errBadRequest))
		return
	}
	rider, err := riderParam(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	place, err := a.Geocoder.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			err = fmt.Errorf("no location for %q: %w", q, err)
		}
		a.sendError(w, r, err)
		return
	}
	resp, err := a.planTrip(r.Context(), rider, place.Point)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	resp.Destination = &place
	a.sendData(w, r, resp)
}

// planTrip plans and assembles a trip. Either step failing yields no legs.
func (a *API) planTrip(ctx context.Context, rider, dest geo.Point) (*planResponse, error) {
	plan, err := a.Planner.PlanFrom(rider, dest)
	if err != nil {
		a.observePlan(err)
		return nil, err
	}
	legs, err := a.Assembler.Assemble(ctx, plan, rider, dest)
	a.observePlan(err)
	if err != nil {
		return nil, err
	}
	resp := &planResponse{
		ID:       legs.ID,
		Entry:    plan.Entry,
		Exit:     plan.Exit,
		Segments: plan.Segments,
		Summary:  plan.Summary(),
		Legs:     legs.Legs,
		GeoJSON:  legs.FeatureCollection(),
	}
	if t, ok := plan.Transfer(); ok {
		resp.Transfer = t
	}
	return resp, nil
}

func (a *API) observePlan(err error) {
	if a.Metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, planner.ErrNoFeasiblePlan):
		outcome = "no_plan"
	case errors.Is(err, routing.ErrRoutingUnavailable):
		outcome = "routing"
	case errors.Is(err, planner.ErrPositionUnknown), errors.Is(err, planner.ErrInvalidDestination):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	a.Metrics.PlanObserve(outcome)
}
