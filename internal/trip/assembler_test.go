package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/planner"
	"shuttle-tracker/internal/routing"
)

type call struct {
	profile routing.Profile
	from    geo.Point
	to      geo.Point
}

// lineRouter draws straight lines with a midpoint and can fail on the n-th call.
// With emptyFoot set, foot routes come back with no points.
type lineRouter struct {
	calls     []call
	failAt    int
	emptyFoot bool
}

func (r *lineRouter) Polyline(_ context.Context, profile routing.Profile, wps ...geo.Point) ([]geo.Point, error) {
	r.calls = append(r.calls, call{profile, wps[0], wps[len(wps)-1]})
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return nil, fmt.Errorf("%w: test failure", routing.ErrRoutingUnavailable)
	}
	if r.emptyFoot && profile == routing.Foot {
		return nil, nil
	}
	a, b := wps[0], wps[len(wps)-1]
	mid := geo.Point{Lat: (a.Lat + b.Lat) / 2, Lon: (a.Lon + b.Lon) / 2}
	return []geo.Point{a, mid, b}, nil
}

func (r *lineRouter) Duration(context.Context, routing.Profile, ...geo.Point) (time.Duration, error) {
	return time.Minute, nil
}

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.New(
		[]network.Stop{{Name: "A", Lat: 0, Lon: 0}, {Name: "B", Lat: 0, Lon: 1}, {Name: "C", Lat: 0, Lon: 2}},
		[]network.Route{{Name: "r1", Stops: []string{"A", "B"}}, {Name: "r2", Stops: []string{"B", "C"}}},
		nil,
	)
	require.NoError(t, err)
	return n
}

func TestAssembleNoWalkWhenAtStops(t *testing.T) {
	n := testNetwork(t)
	r := &lineRouter{}
	a := NewAssembler(n, r)
	plan := planner.Plan{Entry: "A", Exit: "B", Segments: []planner.Segment{{From: "A", To: "B", Route: "r1"}}}

	legs, err := a.Assemble(context.Background(), plan, geo.Point{Lat: 0.0001, Lon: 0}, geo.Point{Lat: 0, Lon: 1.0001})
	require.NoError(t, err)
	require.Len(t, legs.Legs, 1)
	assert.Equal(t, Bus, legs.Legs[0].Kind)
	assert.Empty(t, legs.Walks())
	assert.NotEqual(t, [16]byte{}, [16]byte(legs.ID))
	require.Len(t, r.calls, 1)
	assert.Equal(t, routing.Driving, r.calls[0].profile)
}

func TestAssembleTransferWithWalks(t *testing.T) {
	n := testNetwork(t)
	r := &lineRouter{}
	a := NewAssembler(n, r)
	plan := planner.Plan{Entry: "A", Exit: "C", Segments: []planner.Segment{
		{From: "A", To: "B", Route: "r1"},
		{From: "B", To: "C", Route: "r2"},
	}}
	rider := geo.Point{Lat: 0.01, Lon: 0.49}  // about 1 km off, next to the A-B midpoint
	dest := geo.Point{Lat: -0.01, Lon: 2.02} // past C

	legs, err := a.Assemble(context.Background(), plan, rider, dest)
	require.NoError(t, err)

	kinds := []LegKind{}
	for _, l := range legs.Legs {
		kinds = append(kinds, l.Kind)
	}
	assert.Equal(t, []LegKind{Walk, Bus, Bus, Walk}, kinds)
	assert.Len(t, legs.Bus(), 2)

	require.Len(t, r.calls, 4)
	// bus legs first, in plan order
	assert.Equal(t, routing.Driving, r.calls[0].profile)
	assert.Equal(t, geo.Point{Lat: 0, Lon: 0}, r.calls[0].from)
	assert.Equal(t, geo.Point{Lat: 0, Lon: 1}, r.calls[1].from)
	// walk to the closest vertex of the first bus leg, the A-B midpoint
	assert.Equal(t, routing.Foot, r.calls[2].profile)
	assert.Equal(t, rider, r.calls[2].from)
	assert.Equal(t, geo.Point{Lat: 0, Lon: 0.5}, r.calls[2].to)
	// walk from the closest vertex of the last bus leg, C itself
	assert.Equal(t, routing.Foot, r.calls[3].profile)
	assert.Equal(t, geo.Point{Lat: 0, Lon: 2}, r.calls[3].from)
	assert.Equal(t, dest, r.calls[3].to)

	fc := legs.FeatureCollection()
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "walk", fc.Features[0].Properties["kind"])
	assert.Equal(t, "r2", fc.Features[2].Properties["route"])
	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"FeatureCollection"`)
}

func TestAssembleFailsWholeOnRoutingError(t *testing.T) {
	n := testNetwork(t)
	plan := planner.Plan{Entry: "A", Exit: "C", Segments: []planner.Segment{
		{From: "A", To: "B", Route: "r1"},
		{From: "B", To: "C", Route: "r2"},
	}}
	for failAt := 1; failAt <= 4; failAt++ {
		r := &lineRouter{failAt: failAt}
		legs, err := NewAssembler(n, r).Assemble(context.Background(), plan, geo.Point{Lat: 0.5, Lon: 0}, geo.Point{Lat: 0.5, Lon: 2})
		assert.ErrorIs(t, err, routing.ErrRoutingUnavailable, "fail at call %d", failAt)
		assert.Nil(t, legs)
	}

	_, err := NewAssembler(n, &lineRouter{}).Assemble(context.Background(), planner.Plan{}, geo.Point{}, geo.Point{})
	assert.ErrorIs(t, err, planner.ErrNoFeasiblePlan)
}

func TestAssembleRejectsEmptyWalk(t *testing.T) {
	n := testNetwork(t)
	plan := planner.Plan{Entry: "A", Exit: "B", Segments: []planner.Segment{{From: "A", To: "B", Route: "r1"}}}
	r := &lineRouter{emptyFoot: true}

	// rider far from A needs a walk leg
	legs, err := NewAssembler(n, r).Assemble(context.Background(), plan, geo.Point{Lat: 0.5, Lon: 0}, geo.Point{Lat: 0, Lon: 1})
	assert.ErrorIs(t, err, routing.ErrRoutingUnavailable)
	assert.Nil(t, legs)

	// destination far from B needs a walk leg
	legs, err = NewAssembler(n, r).Assemble(context.Background(), plan, geo.Point{Lat: 0, Lon: 0}, geo.Point{Lat: 0.5, Lon: 1})
	assert.ErrorIs(t, err, routing.ErrRoutingUnavailable)
	assert.Nil(t, legs)
}

func TestRouteGeometry(t *testing.T) {
	n, err := network.Default()
	require.NoError(t, err)
	r := &lineRouter{}
	view, err := NewAssembler(n, r).RouteGeometry(context.Background(), "shyamoli-agargaon")
	require.NoError(t, err)
	assert.Len(t, view.Legs, 3)
	assert.Equal(t, "Route: bubt → mirpur10 → agargaon → shyamoli", view.Summary)
	assert.Equal(t, "agargaon", view.Legs[2].From)
	assert.Len(t, view.FeatureCollection().Features, 3)

	_, err = NewAssembler(n, r).RouteGeometry(context.Background(), "nope")
	assert.ErrorIs(t, err, network.ErrUnknownRoute)

	_, err = NewAssembler(n, &lineRouter{failAt: 2}).RouteGeometry(context.Background(), "mirpur14")
	assert.ErrorIs(t, err, routing.ErrRoutingUnavailable)
}
