// Package planner computes direct or single-transfer plans over the route
// catalog.
package planner

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
)

var (
	ErrNoFeasiblePlan     = errors.New("no feasible plan")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrPositionUnknown    = errors.New("rider position unknown")
)

// Segment is one bus hop between two stops co-served by Route.
type Segment struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Route string `json:"route"`
}

type Plan struct {
	Entry    string    `json:"entry"`
	Exit     string    `json:"exit"`
	Segments []Segment `json:"segments"`
}

// Transfer returns the transfer stop of a two-segment plan.
func (p Plan) Transfer() (string, bool) {
	if len(p.Segments) != 2 {
		return "", false
	}
	return p.Segments[0].To, true
}

// Summary renders the plan as rider instructions.
func (p Plan) Summary() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		if i == 0 {
			parts[i] = "Board at " + s.From
		} else {
			parts[i] = fmt.Sprintf("Then from %s to %s", s.From, s.To)
		}
	}
	return strings.Join(parts, " → ")
}

type Planner struct {
	net *network.Network
}

func New(net *network.Network) *Planner {
	return &Planner{net: net}
}

// PlanFrom resolves the rider and destination to their nearest stops and plans
// between them.
func (p *Planner) PlanFrom(rider, dest geo.Point) (Plan, error) {
	if err := rider.Validate(); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrPositionUnknown, err)
	}
	if err := dest.Validate(); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	entry, err := p.net.NearestStop(rider)
	if err != nil {
		return Plan{}, err
	}
	exit, err := p.net.NearestStop(dest)
	if err != nil {
		return Plan{}, err
	}
	return p.Plan(entry.Name, exit.Name, rider, dest)
}

// Plan returns a one-segment plan when a single route serves both stops, the
// first such route in catalog order winning. Otherwise it picks the transfer
// stop t minimising distance(rider, t) + distance(t, dest) over every pair of
// routes (rA serving entry, rB serving exit). Ties keep the first candidate
// in iteration order.
func (p *Planner) Plan(entry, exit string, rider, dest geo.Point) (Plan, error) {
	if _, ok := p.net.Stop(entry); !ok {
		return Plan{}, fmt.Errorf("%w: entry %q", network.ErrUnknownStop, entry)
	}
	if _, ok := p.net.Stop(exit); !ok {
		return Plan{}, fmt.Errorf("%w: exit %q", network.ErrUnknownStop, exit)
	}
	routes := p.net.Routes()

	for _, r := range routes {
		if r.Contains(entry) && r.Contains(exit) {
			return Plan{
				Entry:    entry,
				Exit:     exit,
				Segments: []Segment{{From: entry, To: exit, Route: r.Name}},
			}, nil
		}
	}

	bestCost := math.Inf(1)
	var best Plan
	found := false
	for _, rA := range routes {
		if !rA.Contains(entry) {
			continue
		}
		for _, rB := range routes {
			if !rB.Contains(exit) {
				continue
			}
			for _, t := range rA.Stops {
				if !rB.Contains(t) {
					continue
				}
				tp, err := p.net.Point(t)
				if err != nil {
					return Plan{}, err
				}
				cost := geo.DistanceKm(rider, tp) + geo.DistanceKm(tp, dest)
				if cost < bestCost {
					bestCost = cost
					found = true
					best = Plan{
						Entry: entry,
						Exit:  exit,
						Segments: []Segment{
							{From: entry, To: t, Route: rA.Name},
							{From: t, To: exit, Route: rB.Name},
						},
					}
				}
			}
		}
	}
	if !found {
		return Plan{}, fmt.Errorf("%w: %s to %s", ErrNoFeasiblePlan, entry, exit)
	}
	return best, nil
}
