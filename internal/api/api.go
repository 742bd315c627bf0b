// Package api exposes planning, tracking and ETA over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"shuttle-tracker/internal/eta"
	"shuttle-tracker/internal/geocode"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/tracker"
	"shuttle-tracker/internal/trip"
	"shuttle-tracker/internal/vehicle"
)

type Geocoder interface {
	Search(ctx context.Context, query string) (geocode.Place, error)
}

type Metrics interface {
	PlanObserve(outcome string)
	ETAObserve(outcome string)
}

type Deps struct {
	Network    *network.Network
	Planner    *planner.Planner
	Assembler  *trip.Assembler
	Tracker    *tracker.Manager
	Vehicles   vehicle.Source
	VehicleIDs []string // empty accepts any id
	ETA        *eta.Estimator
	Geocoder   Geocoder
	Hub        *Hub
	Metrics    Metrics
	Logger     *slog.Logger
}

type API struct {
	Deps
	known map[string]struct{}
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Hub == nil {
		d.Hub = NewHub(DefaultSubscriberBuffer)
	}
	a := &API{Deps: d, known: make(map[string]struct{}, len(d.VehicleIDs))}
	for _, id := range d.VehicleIDs {
		a.known[id] = struct{}{}
	}
	return a
}

func (a *API) Handler() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/healthz", a.healthHandler)

	router.HandlerFunc(http.MethodGet, "/api/stops", a.stopsHandler)
	router.HandlerFunc(http.MethodGet, "/api/routes", a.routesHandler)
	router.HandlerFunc(http.MethodGet, "/api/routes/:name/geometry", a.routeGeometryHandler)
	router.HandlerFunc(http.MethodGet, "/api/nearest", a.nearestHandler)

	router.HandlerFunc(http.MethodGet, "/api/plan", a.planHandler)
	router.HandlerFunc(http.MethodGet, "/api/search", a.searchHandler)

	router.HandlerFunc(http.MethodGet, "/api/vehicles/:id", a.vehicleHandler)
	router.HandlerFunc(http.MethodPut, "/api/vehicles/:id/tracking", a.startTrackingHandler)
	router.HandlerFunc(http.MethodDelete, "/api/vehicles/:id/tracking", a.stopTrackingHandler)
	router.HandlerFunc(http.MethodGet, "/api/vehicles/:id/eta", a.etaHandler)
	router.HandlerFunc(http.MethodGet, "/stream/:id", a.streamHandler)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.sendError(w, r, errNotFound)
	})
	return NewRequestLoggingMiddleware(a.Logger)(router)
}

func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.sendData(w, r, map[string]any{"status": "ok", "tracked": a.Tracker.Tracked()})
}

func (a *API) knownVehicle(id string) bool {
	if len(a.known) == 0 {
		return id != ""
	}
	_, ok := a.known[id]
	return ok
}

func param(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}
