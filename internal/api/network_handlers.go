package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
)

func (a *API) stopsHandler(w http.ResponseWriter, r *http.Request) {
	a.sendData(w, r, map[string]any{"list": a.Network.Stops()})
}

func (a *API) routesHandler(w http.ResponseWriter, r *http.Request) {
	a.sendData(w, r, map[string]any{"list": a.Network.Routes()})
}

type routeGeometryResponse struct {
	Route   network.Route              `json:"route"`
	Summary string                     `json:"summary"`
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
}

func (a *API) routeGeometryHandler(w http.ResponseWriter, r *http.Request) {
	view, err := a.Assembler.RouteGeometry(r.Context(), param(r, "name"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, routeGeometryResponse{
		Route:   view.Route,
		Summary: view.Summary,
		GeoJSON: view.FeatureCollection(),
	})
}

type nearestResponse struct {
	Stop       network.Stop `json:"stop"`
	DistanceKm float64      `json:"distanceKm"`
}

func (a *API) nearestHandler(w http.ResponseWriter, r *http.Request) {
	p, ok, err := pointParam(r.URL.Query(), "lat", "lon")
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	if !ok {
		a.sendError(w, r, fmt.Errorf("%w: lat and lon are required", errBadRequest))
		return
	}
	s, err := a.Network.NearestStop(p)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendData(w, r, nearestResponse{Stop: s, DistanceKm: geo.DistanceKm(p, s.Point())})
}

// pointParam reads a coordinate pair. ok is false when both are absent.
// A half-present or malformed pair is an invalid coordinate.
func pointParam(q url.Values, latKey, lonKey string) (geo.Point, bool, error) {
	latS, lonS := strings.TrimSpace(q.Get(latKey)), strings.TrimSpace(q.Get(lonKey))
	if latS == "" && lonS == "" {
		return geo.Point{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lon, err2 := strconv.ParseFloat(lonS, 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, true, fmt.Errorf("%w: %s=%q %s=%q", geo.ErrInvalidCoordinate, latKey, latS, lonKey, lonS)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return geo.Point{}, true, err
	}
	return p, true, nil
}
