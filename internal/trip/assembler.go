// Package trip turns plans into drawable bus and walking legs.
package trip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/routing"
)

// WalkThresholdKm is how far the rider or destination may be from the boarding
// or alighting stop before a walking leg is added.
const WalkThresholdKm = 0.05

type LegKind string

const (
	Bus  LegKind = "bus"
	Walk LegKind = "walk"
)

type Leg struct {
	Kind     LegKind     `json:"kind"`
	From     string      `json:"from,omitempty"`
	To       string      `json:"to,omitempty"`
	Route    string      `json:"route,omitempty"`
	Polyline []geo.Point `json:"polyline"`
}

// Legs is the assembled trip: an optional walk to the boarding point, one bus
// leg per plan segment, and an optional walk to the destination.
type Legs struct {
	ID        uuid.UUID    `json:"id"`
	Plan      planner.Plan `json:"plan"`
	Legs      []Leg        `json:"legs"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (l *Legs) Bus() []Leg {
	var out []Leg
	for _, leg := range l.Legs {
		if leg.Kind == Bus {
			out = append(out, leg)
		}
	}
	return out
}

func (l *Legs) Walks() []Leg {
	var out []Leg
	for _, leg := range l.Legs {
		if leg.Kind == Walk {
			out = append(out, leg)
		}
	}
	return out
}

// FeatureCollection renders every leg as a GeoJSON LineString feature.
func (l *Legs) FeatureCollection() *geojson.FeatureCollection {
	return featureCollection(l.Legs)
}

func featureCollection(legs []Leg) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, leg := range legs {
		f := geojson.NewFeature(geo.LineString(leg.Polyline))
		f.Properties["kind"] = string(leg.Kind)
		f.Properties["index"] = i
		if leg.From != "" {
			f.Properties["from"] = leg.From
		}
		if leg.To != "" {
			f.Properties["to"] = leg.To
		}
		if leg.Route != "" {
			f.Properties["route"] = leg.Route
		}
		fc.Append(f)
	}
	return fc
}

type Assembler struct {
	net    *network.Network
	router routing.Router
	now    func() time.Time
}

func NewAssembler(net *network.Network, router routing.Router) *Assembler {
	return &Assembler{net: net, router: router, now: time.Now}
}

// Assemble requests a driving polyline for every segment of plan, then adds
// walking legs from rider and to dest when they are further than
// WalkThresholdKm from the boarding and alighting stops. Any routing failure
// fails the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, plan planner.Plan, rider, dest geo.Point) (*Legs, error) {
	if len(plan.Segments) == 0 {
		return nil, fmt.Errorf("%w: empty plan", planner.ErrNoFeasiblePlan)
	}
	bus := make([]Leg, 0, len(plan.Segments))
	for _, seg := range plan.Segments {
		leg, err := a.busLeg(ctx, seg.From, seg.To, seg.Route)
		if err != nil {
			return nil, err
		}
		bus = append(bus, leg)
	}

	legs := make([]Leg, 0, len(bus)+2)

	first := plan.Segments[0]
	board, err := a.net.Point(first.From)
	if err != nil {
		return nil, err
	}
	if geo.DistanceKm(rider, board) > WalkThresholdKm {
		pt, _ := geo.ClosestVertex(bus[0].Polyline, rider)
		w, err := a.walk(ctx, rider, pt)
		if err != nil {
			return nil, fmt.Errorf("walk to %s: %w", first.From, err)
		}
		legs = append(legs, Leg{Kind: Walk, To: first.From, Polyline: w})
	}

	legs = append(legs, bus...)

	last := plan.Segments[len(plan.Segments)-1]
	alight, err := a.net.Point(last.To)
	if err != nil {
		return nil, err
	}
	if geo.DistanceKm(dest, alight) > WalkThresholdKm {
		pt, _ := geo.ClosestVertex(bus[len(bus)-1].Polyline, dest)
		w, err := a.walk(ctx, pt, dest)
		if err != nil {
			return nil, fmt.Errorf("walk from %s: %w", last.To, err)
		}
		legs = append(legs, Leg{Kind: Walk, From: last.To, Polyline: w})
	}

	return &Legs{ID: uuid.New(), Plan: plan, Legs: legs, CreatedAt: a.now()}, nil
}

func (a *Assembler) walk(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	poly, err := a.router.Polyline(ctx, routing.Foot, from, to)
	if err != nil {
		return nil, err
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("%w: empty polyline", routing.ErrRoutingUnavailable)
	}
	return poly, nil
}

func (a *Assembler) busLeg(ctx context.Context, from, to, route string) (Leg, error) {
	fp, err := a.net.Point(from)
	if err != nil {
		return Leg{}, err
	}
	tp, err := a.net.Point(to)
	if err != nil {
		return Leg{}, err
	}
	poly, err := a.router.Polyline(ctx, routing.Driving, fp, tp)
	if err != nil {
		return Leg{}, fmt.Errorf("bus %s to %s: %w", from, to, err)
	}
	if len(poly) == 0 {
		return Leg{}, fmt.Errorf("bus %s to %s: %w: empty polyline", from, to, routing.ErrRoutingUnavailable)
	}
	return Leg{Kind: Bus, From: from, To: to, Route: route, Polyline: poly}, nil
}

// RouteView is the full drawn path of one catalog route.
type RouteView struct {
	Route   network.Route `json:"route"`
	Summary string        `json:"summary"`
	Legs    []Leg         `json:"legs"`
}

func (v *RouteView) FeatureCollection() *geojson.FeatureCollection {
	return featureCollection(v.Legs)
}

// RouteGeometry draws a catalog route one stop pair at a time.
func (a *Assembler) RouteGeometry(ctx context.Context, name string) (*RouteView, error) {
	r, ok := a.net.Route(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", network.ErrUnknownRoute, name)
	}
	legs := make([]Leg, 0, len(r.Stops)-1)
	for i := 0; i < len(r.Stops)-1; i++ {
		leg, err := a.busLeg(ctx, r.Stops[i], r.Stops[i+1], r.Name)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return &RouteView{Route: r, Summary: "Route: " + r.String(), Legs: legs}, nil
}
