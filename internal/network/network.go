// Package network holds the fixed stop registry and route catalog of the
// shuttle service. A Network is built once at startup and is read-only after.
package network

import (
	"errors"
	"fmt"
	"strings"

	"shuttle-tracker/internal/geo"
)

var (
	ErrNoStopsConfigured = errors.New("no stops configured")
	ErrUnknownStop       = errors.New("unknown stop")
	ErrUnknownRoute      = errors.New("unknown route")
	ErrInvalidNetwork    = errors.New("invalid network")
)

type Stop struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lon: s.Lon} }

// Route is an ordered path of stop names. It is not a cycle.
type Route struct {
	Name  string   `json:"name"`
	Stops []string `json:"stops"`
}

// Index returns the position of stop in the route, or -1.
func (r Route) Index(stop string) int {
	for i, s := range r.Stops {
		if s == stop {
			return i
		}
	}
	return -1
}

func (r Route) Contains(stop string) bool { return r.Index(stop) >= 0 }

func (r Route) First() string { return r.Stops[0] }
func (r Route) Last() string  { return r.Stops[len(r.Stops)-1] }

// Reversed returns a copy of the route traversed end to start.
func (r Route) Reversed() Route {
	out := Route{Name: r.Name, Stops: make([]string, len(r.Stops))}
	for i, s := range r.Stops {
		out.Stops[len(r.Stops)-1-i] = s
	}
	return out
}

func (r Route) String() string { return strings.Join(r.Stops, " → ") }

type Network struct {
	stops    []Stop
	stopIdx  map[string]int
	routes   []Route
	routeIdx map[string]int
	vehicles map[string]string // vehicle id -> route name
}

// New validates and indexes the given stops and routes. Iteration order of
// stops and routes is preserved and used for deterministic tie-breaking.
func New(stops []Stop, routes []Route, vehicles map[string]string) (*Network, error) {
	n := &Network{
		stops:    make([]Stop, 0, len(stops)),
		stopIdx:  make(map[string]int, len(stops)),
		routes:   make([]Route, 0, len(routes)),
		routeIdx: make(map[string]int, len(routes)),
		vehicles: make(map[string]string, len(vehicles)),
	}
	for _, s := range stops {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("%w: stop with empty name", ErrInvalidNetwork)
		}
		if err := s.Point().Validate(); err != nil {
			return nil, fmt.Errorf("%w: stop %q: %v", ErrInvalidNetwork, s.Name, err)
		}
		if _, dup := n.stopIdx[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stop %q", ErrInvalidNetwork, s.Name)
		}
		n.stopIdx[s.Name] = len(n.stops)
		n.stops = append(n.stops, s)
	}
	for _, r := range routes {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: route with empty name", ErrInvalidNetwork)
		}
		if _, dup := n.routeIdx[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate route %q", ErrInvalidNetwork, r.Name)
		}
		if len(r.Stops) < 2 {
			return nil, fmt.Errorf("%w: route %q needs at least two stops", ErrInvalidNetwork, r.Name)
		}
		seen := make(map[string]bool, len(r.Stops))
		for _, s := range r.Stops {
			if _, ok := n.stopIdx[s]; !ok {
				return nil, fmt.Errorf("%w: route %q references unknown stop %q", ErrInvalidNetwork, r.Name, s)
			}
			if seen[s] {
				return nil, fmt.Errorf("%w: route %q visits %q twice", ErrInvalidNetwork, r.Name, s)
			}
			seen[s] = true
		}
		cp := Route{Name: r.Name, Stops: append([]string(nil), r.Stops...)}
		n.routeIdx[r.Name] = len(n.routes)
		n.routes = append(n.routes, cp)
	}
	for id, route := range vehicles {
		if _, ok := n.routeIdx[route]; !ok {
			return nil, fmt.Errorf("%w: vehicle %q assigned to unknown route %q", ErrInvalidNetwork, id, route)
		}
		n.vehicles[id] = route
	}
	return n, nil
}

// Stops returns the registry in iteration order.
func (n *Network) Stops() []Stop { return append([]Stop(nil), n.stops...) }

// Routes returns the catalog in catalog order.
func (n *Network) Routes() []Route {
	out := make([]Route, len(n.routes))
	for i, r := range n.routes {
		out[i] = Route{Name: r.Name, Stops: append([]string(nil), r.Stops...)}
	}
	return out
}

func (n *Network) Stop(name string) (Stop, bool) {
	i, ok := n.stopIdx[name]
	if !ok {
		return Stop{}, false
	}
	return n.stops[i], true
}

// Point returns the coordinates of a registered stop.
func (n *Network) Point(name string) (geo.Point, error) {
	s, ok := n.Stop(name)
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: %q", ErrUnknownStop, name)
	}
	return s.Point(), nil
}

func (n *Network) Route(name string) (Route, bool) {
	i, ok := n.routeIdx[name]
	if !ok {
		return Route{}, false
	}
	return n.routes[i], true
}

// VehicleRoute returns the route a vehicle is assigned to, if any.
func (n *Network) VehicleRoute(id string) (Route, bool) {
	name, ok := n.vehicles[id]
	if !ok {
		return Route{}, false
	}
	return n.Route(name)
}

// NearestStop returns the registered stop closest to p. Ties go to the stop
// registered first.
func (n *Network) NearestStop(p geo.Point) (Stop, error) {
	if len(n.stops) == 0 {
		return Stop{}, ErrNoStopsConfigured
	}
	best := n.stops[0]
	bestDist := geo.DistanceKm(p, best.Point())
	for _, s := range n.stops[1:] {
		if d := geo.DistanceKm(p, s.Point()); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

// NearestIndex returns the index within seq of the stop closest to p, or -1
// when seq is empty or names no registered stop.
func (n *Network) NearestIndex(seq []string, p geo.Point) int {
	best, bestDist := -1, 0.0
	for i, name := range seq {
		s, ok := n.Stop(name)
		if !ok {
			continue
		}
		if d := geo.DistanceKm(p, s.Point()); best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
