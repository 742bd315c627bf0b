package vehicle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jamespfennell/gtfs"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/network"
)

// GTFSRT reads vehicle positions from a GTFS-realtime VehiclePositions feed.
// Feeds carry no direction label, so one is built from the trip's route and
// direction_id against the route catalog.
type GTFSRT struct {
	url    string
	net    *network.Network
	client *http.Client
	now    func() time.Time
}

func NewGTFSRT(feedURL string, net *network.Network, timeout time.Duration) *GTFSRT {
	return &GTFSRT{
		url:    feedURL,
		net:    net,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (g *GTFSRT) Fetch(ctx context.Context, id string) (State, error) {
	feed, err := g.fetchFeed(ctx)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrPositionFetchFailed, err)
	}
	for i := range feed.Vehicles {
		v := &feed.Vehicles[i]
		if v.Position == nil || v.Position.Latitude == nil || v.Position.Longitude == nil {
			continue
		}
		desc := v.GetID()
		if desc.ID != id && desc.Label != id {
			continue
		}
		return g.toState(id, v), nil
	}
	return State{}, fmt.Errorf("%w: %s not in feed", ErrPositionFetchFailed, id)
}

func (g *GTFSRT) fetchFeed(ctx context.Context) (*gtfs.Realtime, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return gtfs.ParseRealtime(b, &gtfs.ParseRealtimeOptions{})
}

func (g *GTFSRT) toState(id string, v *gtfs.Vehicle) State {
	pos := v.Position
	st := State{
		ID:        id,
		Name:      v.GetID().Label,
		Lat:       float64(*pos.Latitude),
		Lon:       float64(*pos.Longitude),
		FetchedAt: g.now(),
	}
	if pos.Bearing != nil {
		st.Heading = geo.OctantFromBearing(float64(*pos.Bearing))
	}
	if pos.Speed != nil {
		s := float64(*pos.Speed)
		st.Velocity = &s
	}
	var trip gtfs.TripID
	if v.Trip != nil {
		trip = v.Trip.ID
	}
	st.Direction = g.label(id, trip)
	return st
}

// label maps the trip's route and direction_id to "first → last".
// direction_id 1 runs the catalog route backwards.
func (g *GTFSRT) label(id string, trip gtfs.TripID) string {
	if g.net == nil {
		return ""
	}
	r, ok := g.net.Route(trip.RouteID)
	if !ok {
		if r, ok = g.net.VehicleRoute(id); !ok {
			return ""
		}
	}
	o := network.Forward
	if trip.DirectionID == gtfs.DirectionID_True {
		o = network.Reverse
	}
	return network.Label(r, o)
}
