package network

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttle-tracker/internal/geo"
)

func lineNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := New(
		[]Stop{{"A", 0, 0}, {"B", 0, 1}, {"C", 0, 2}},
		[]Route{{Name: "abc", Stops: []string{"A", "B", "C"}}},
		map[string]string{"bus1": "abc"},
	)
	require.NoError(t, err)
	return n
}

func TestNearestStopAtRegisteredStop(t *testing.T) {
	n, err := Default()
	require.NoError(t, err)
	for _, s := range n.Stops() {
		got, err := n.NearestStop(s.Point())
		require.NoError(t, err)
		assert.Equal(t, s.Name, got.Name)
	}
}

func TestNearestStop(t *testing.T) {
	n := lineNetwork(t)

	s, err := n.NearestStop(geo.Point{Lat: 0, Lon: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "A", s.Name)

	s, err = n.NearestStop(geo.Point{Lat: 0, Lon: 1.99})
	require.NoError(t, err)
	assert.Equal(t, "C", s.Name)

	// far away still resolves
	s, err = n.NearestStop(geo.Point{Lat: 60, Lon: -120})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Name)

	// equidistant from A and B: first registered wins
	s, err = n.NearestStop(geo.Point{Lat: 0, Lon: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "A", s.Name)
}

func TestNearestStopEmptyRegistry(t *testing.T) {
	n, err := New(nil, nil, nil)
	require.NoError(t, err)
	_, err = n.NearestStop(geo.Point{})
	assert.ErrorIs(t, err, ErrNoStopsConfigured)
}

func TestNewRejectsInvalidNetworks(t *testing.T) {
	stops := []Stop{{"A", 0, 0}, {"B", 0, 1}}
	tests := []struct {
		name     string
		stops    []Stop
		routes   []Route
		vehicles map[string]string
	}{
		{"duplicate stop", append(stops, Stop{"A", 1, 1}), nil, nil},
		{"empty stop name", []Stop{{" ", 0, 0}}, nil, nil},
		{"bad coordinate", []Stop{{"X", 91, 0}}, nil, nil},
		{"short route", stops, []Route{{Name: "r", Stops: []string{"A"}}}, nil},
		{"unknown stop", stops, []Route{{Name: "r", Stops: []string{"A", "Z"}}}, nil},
		{"repeated stop", stops, []Route{{Name: "r", Stops: []string{"A", "B", "A"}}}, nil},
		{"duplicate route", stops, []Route{{Name: "r", Stops: []string{"A", "B"}}, {Name: "r", Stops: []string{"B", "A"}}}, nil},
		{"unknown vehicle route", stops, []Route{{Name: "r", Stops: []string{"A", "B"}}}, map[string]string{"bus": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.stops, tt.routes, tt.vehicles)
			assert.ErrorIs(t, err, ErrInvalidNetwork)
		})
	}
}

func TestRouteHelpers(t *testing.T) {
	r := Route{Name: "abc", Stops: []string{"A", "B", "C"}}
	assert.Equal(t, 1, r.Index("B"))
	assert.Equal(t, -1, r.Index("Z"))
	assert.True(t, r.Contains("C"))
	assert.Equal(t, "A", r.First())
	assert.Equal(t, "C", r.Last())
	assert.Equal(t, []string{"C", "B", "A"}, r.Reversed().Stops)
	assert.Equal(t, []string{"A", "B", "C"}, r.Stops, "reverse must not mutate")
	assert.Equal(t, "A → B → C", r.String())
}

func TestNetworkLookups(t *testing.T) {
	n := lineNetwork(t)

	r, ok := n.VehicleRoute("bus1")
	require.True(t, ok)
	assert.Equal(t, "abc", r.Name)
	_, ok = n.VehicleRoute("bus9")
	assert.False(t, ok)

	p, err := n.Point("B")
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 0, Lon: 1}, p)
	_, err = n.Point("Z")
	assert.ErrorIs(t, err, ErrUnknownStop)

	assert.Equal(t, 2, n.NearestIndex([]string{"A", "B", "C"}, geo.Point{Lat: 0, Lon: 1.8}))
	assert.Equal(t, 0, n.NearestIndex([]string{"C", "B", "A"}, geo.Point{Lat: 0, Lon: 1.8}))
	assert.Equal(t, -1, n.NearestIndex(nil, geo.Point{}))

	// callers cannot mutate the catalog
	routes := n.Routes()
	routes[0].Stops[0] = "mutated"
	again, _ := n.Route("abc")
	assert.Equal(t, "A", again.Stops[0])
}

func TestDefaultNetwork(t *testing.T) {
	n, err := Default()
	require.NoError(t, err)
	assert.Len(t, n.Stops(), 17)
	assert.Len(t, n.Routes(), 5)
	for _, r := range n.Routes() {
		assert.Equal(t, "bubt", r.First())
	}
	r, ok := n.VehicleRoute("Bus4")
	require.True(t, ok)
	assert.Equal(t, "hemayetpur", r.Last())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yml := filepath.Join(dir, "net.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(`
stops:
  - {name: A, lat: 0, lon: 0}
  - {name: B, lat: 0, lon: 1}
routes:
  - {name: ab, stops: [A, B]}
vehicles:
  bus1: ab
`), 0o644))
	n, err := LoadFile(yml)
	require.NoError(t, err)
	assert.Len(t, n.Stops(), 2)

	tml := filepath.Join(dir, "net.toml")
	require.NoError(t, os.WriteFile(tml, []byte(`
[[stops]]
name = "A"
lat = 0.0
lon = 0.0

[[stops]]
name = "B"
lat = 0.0
lon = 1.0

[[routes]]
name = "ab"
stops = ["A", "B"]

[vehicles]
bus1 = "ab"
`), 0o644))
	n, err = LoadFile(tml)
	require.NoError(t, err)
	r, ok := n.VehicleRoute("bus1")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, r.Stops)

	bad := filepath.Join(dir, "net.yaml.bak")
	require.NoError(t, os.WriteFile(bad, []byte("stops: []"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	_, err = ParseYAML([]byte("stops: []"))
	assert.ErrorIs(t, err, ErrInvalidNetwork)

	_, err = ParseYAML([]byte("stops:\n  - {name: A, lat: 100, lon: 0}\n"))
	assert.ErrorIs(t, err, ErrInvalidNetwork)
}

func gtfsZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseGTFS(t *testing.T) {
	data := gtfsZip(t, map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"uni,University Shuttle,https://example.edu,Asia/Dhaka\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,uni,Blue,Blue Line,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,Gate,23.81,90.35\n" +
			"s2,Library,23.82,90.36\n" +
			"s3,Hall,23.83,90.37\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"wk,1,1,1,1,1,1,1,20240101,20301231\n",
		"trips.txt": "route_id,service_id,trip_id\n" +
			"R1,wk,t1\n" +
			"R1,wk,t2\n" +
			"R1,wk,t3\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:00:00,08:00:00,s1,1\n" +
			"t1,08:05:00,08:05:00,s2,2\n" +
			"t1,08:10:00,08:10:00,s3,3\n" +
			"t2,09:00:00,09:00:00,s1,1\n" +
			"t2,09:05:00,09:05:00,s2,2\n" +
			"t2,09:10:00,09:10:00,s3,3\n" +
			"t3,10:00:00,10:00:00,s3,1\n" +
			"t3,10:05:00,10:05:00,s1,2\n",
	})

	n, err := ParseGTFS(data)
	require.NoError(t, err)
	assert.Len(t, n.Stops(), 3)

	routes := n.Routes()
	require.Len(t, routes, 2, "identical patterns collapse into one route")
	var seqs [][]string
	for _, r := range routes {
		seqs = append(seqs, r.Stops)
	}
	assert.Contains(t, seqs, []string{"Gate", "Library", "Hall"})
	assert.Contains(t, seqs, []string{"Hall", "Gate"})
}
