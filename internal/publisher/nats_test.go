package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/tracker"
	"shuttle-tracker/internal/vehicle"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	err     error
	drained bool
	closed  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

type countMetrics struct{ ok, errs, observed int }

func (c *countMetrics) NATSPublishedInc()            { c.ok++ }
func (c *countMetrics) NATSPublishErrInc()           { c.errs++ }
func (c *countMetrics) PublishObserve(time.Duration) { c.observed++ }
func (c *countMetrics) NATSSetConnected(bool)        {}

func TestSendPublishesVehicleSubject(t *testing.T) {
	nc := &fakeConn{}
	m := &countMetrics{}
	p := newPublisher(nc, "vehicles.", false, m, logging.Discard())

	v := 7.5
	u := tracker.Update{
		VehicleID: "Bus 1",
		State:     vehicle.State{ID: "Bus 1", Lat: 23.81, Lon: 90.35, Heading: geo.North, Velocity: &v, Direction: "bubt → mirpur14"},
		Direction: network.Direction{Route: network.Route{Name: "mirpur14"}, Orientation: network.Forward},
		Track:     []geo.Point{{Lat: 23.8, Lon: 90.35}, {Lat: 23.81, Lon: 90.35}},
		Timestamp: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
	p.Send(u)

	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "vehicles.Bus_1", nc.msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(nc.msgs[0].data, &got))
	assert.Equal(t, "Bus 1", got["vehicleId"])
	assert.Equal(t, "N", got["heading"])
	assert.Equal(t, "forward", got["orientation"])
	assert.Equal(t, "mirpur14", got["route"])
	assert.EqualValues(t, 2, got["trackPoints"])
	assert.Equal(t, 1, m.ok)
	assert.Equal(t, 1, m.observed)
}

func TestSendCountsErrors(t *testing.T) {
	nc := &fakeConn{err: errors.New("nats: connection closed")}
	m := &countMetrics{}
	p := newPublisher(nc, "", false, m, logging.Discard())

	p.Send(tracker.Update{VehicleID: "Bus2"})
	assert.Equal(t, 1, m.errs)
	assert.Equal(t, 0, m.ok)
	assert.Equal(t, "vehicles.Bus2", p.Subject("Bus2"))

	p.Close()
	assert.True(t, nc.drained)
	assert.True(t, nc.closed)
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"Bus1":     "Bus1",
		" a.b ":    "a_b",
		"x>*y":     "x__y",
		"route/12": "route_12",
		"":         "_",
	}
	for in, want := range tests {
		assert.Equal(t, want, subjectToken(in), in)
	}
}
