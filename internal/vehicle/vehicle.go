// Package vehicle fetches live vehicle positions from the position provider.
package vehicle

import (
	"context"
	"errors"
	"time"

	"shuttle-tracker/internal/geo"
)

var (
	ErrPositionFetchFailed = errors.New("vehicle position fetch failed")
	ErrUnknownVehicle      = errors.New("unknown vehicle")
)

// State is the latest reported position of one vehicle.
type State struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Heading   geo.Octant `json:"heading,omitempty"`
	Velocity  *float64   `json:"velocity,omitempty"`
	Direction string     `json:"direction"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

func (s State) Point() geo.Point { return geo.Point{Lat: s.Lat, Lon: s.Lon} }

// Source returns the current state of a vehicle. Implementations wrap every
// failure in ErrPositionFetchFailed or ErrUnknownVehicle.
type Source interface {
	Fetch(ctx context.Context, id string) (State, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id string) (State, error)

func (f SourceFunc) Fetch(ctx context.Context, id string) (State, error) { return f(ctx, id) }

type restricted struct {
	src   Source
	known map[string]struct{}
}

// Restrict limits src to the given vehicle ids. Any other id fails with
// ErrUnknownVehicle without reaching src. An empty list allows every id.
func Restrict(src Source, ids []string) Source {
	if len(ids) == 0 {
		return src
	}
	r := &restricted{src: src, known: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		r.known[id] = struct{}{}
	}
	return r
}

func (r *restricted) Fetch(ctx context.Context, id string) (State, error) {
	if _, ok := r.known[id]; !ok {
		return State{}, ErrUnknownVehicle
	}
	return r.src.Fetch(ctx, id)
}
