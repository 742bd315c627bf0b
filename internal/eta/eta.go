// Package eta estimates when a tracked vehicle reaches a stop.
package eta

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/routing"
	"shuttle-tracker/internal/vehicle"
)

const DefaultGeofenceMeters = 250.0

var (
	ErrStopNotServed = errors.New("stop not served by vehicle")
	ErrAlreadyPassed = errors.New("vehicle already passed stop")
)

type Status string

const (
	EnRoute Status = "en_route"
	Arrived Status = "arrived"
)

// Result is a successful estimate. Minutes is zero and ArrivesAt nil when
// Status is Arrived.
type Result struct {
	VehicleID    string              `json:"vehicleId"`
	Stop         string              `json:"stop"`
	Route        string              `json:"route"`
	Orientation  network.Orientation `json:"orientation"`
	Status       Status              `json:"status"`
	Minutes      int                 `json:"minutes,omitempty"`
	ArrivesAt    *time.Time          `json:"arrivesAt,omitempty"`
	VehicleIndex int                 `json:"vehicleIndex"`
	StopIndex    int                 `json:"stopIndex"`
}

type Estimator struct {
	net      *network.Network
	router   routing.Router
	geofence float64
	loc      *time.Location
	now      func() time.Time
}

func New(net *network.Network, router routing.Router, geofenceMeters float64, loc *time.Location) *Estimator {
	if geofenceMeters <= 0 {
		geofenceMeters = DefaultGeofenceMeters
	}
	if loc == nil {
		loc = time.Local
	}
	return &Estimator{net: net, router: router, geofence: geofenceMeters, loc: loc, now: time.Now}
}

// Estimate computes the ETA of the vehicle in st to stop. dir is the
// vehicle's resolved direction; an unknown direction serves no stop.
func (e *Estimator) Estimate(ctx context.Context, st vehicle.State, dir network.Direction, stop string) (Result, error) {
	target, ok := e.net.Stop(stop)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", network.ErrUnknownStop, stop)
	}
	if dir.Orientation == network.UnknownDirection {
		return Result{}, fmt.Errorf("%w: direction %q of %s not recognised", ErrStopNotServed, st.Direction, st.ID)
	}

	ti := dir.Route.Index(stop)
	if ti < 0 {
		return Result{}, fmt.Errorf("%w: %s runs %s", ErrStopNotServed, st.ID, dir.Route.Name)
	}
	vi := e.net.NearestIndex(dir.Route.Stops, st.Point())

	res := Result{
		VehicleID:    st.ID,
		Stop:         stop,
		Route:        dir.Route.Name,
		Orientation:  dir.Orientation,
		VehicleIndex: vi,
		StopIndex:    ti,
	}
	if vi > ti {
		return Result{}, fmt.Errorf("%w: %s is at %s, past %s", ErrAlreadyPassed, st.ID, dir.Route.Stops[vi], stop)
	}

	// Geofence is checked before routing so an arrival needs no collaborator.
	if geo.WithinBox(target.Point(), st.Point(), e.geofence) {
		res.Status = Arrived
		return res, nil
	}

	d, err := e.router.Duration(ctx, routing.Driving, st.Point(), target.Point())
	if err != nil {
		return Result{}, err
	}
	res.Status = EnRoute
	res.Minutes = int(math.Ceil(d.Seconds() / 60))
	at := e.now().In(e.loc).Add(time.Duration(res.Minutes) * time.Minute)
	res.ArrivesAt = &at
	return res, nil
}

// Clock renders the arrival time the way riders read it, e.g. "8:05 AM".
func (r Result) Clock() string {
	if r.ArrivesAt == nil {
		return ""
	}
	return r.ArrivesAt.Format(time.Kitchen)
}
