package network

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/jamespfennell/gtfs"
)

// ParseGTFS builds a network from a static GTFS archive. Every distinct stop
// pattern of a GTFS route becomes one catalog route; patterns that visit a
// stop twice are loops and are skipped.
func ParseGTFS(data []byte) (*Network, error) {
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse gtfs: %w", err)
	}

	names := make(map[string]string, len(static.Stops)) // stop id -> registry name
	taken := make(map[string]bool, len(static.Stops))
	var stops []Stop
	for _, s := range static.Stops {
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = s.Id
		}
		if taken[name] {
			name = fmt.Sprintf("%s (%s)", name, s.Id)
		}
		taken[name] = true
		names[s.Id] = name
		stops = append(stops, Stop{Name: name, Lat: *s.Latitude, Lon: *s.Longitude})
	}

	var routes []Route
	seenPattern := map[string]bool{}
	perRoute := map[string]int{}
	for _, trip := range static.Trips {
		if trip.Route == nil || len(trip.StopTimes) < 2 {
			continue
		}
		sts := append([]gtfs.ScheduledStopTime(nil), trip.StopTimes...)
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })

		seq := make([]string, 0, len(sts))
		dup := false
		visited := map[string]bool{}
		for _, st := range sts {
			if st.Stop == nil {
				continue
			}
			name, ok := names[st.Stop.Id]
			if !ok {
				continue
			}
			if visited[name] {
				dup = true
				break
			}
			visited[name] = true
			seq = append(seq, name)
		}
		if dup || len(seq) < 2 {
			continue
		}
		key := trip.Route.Id + "\x00" + strings.Join(seq, "\x00")
		if seenPattern[key] {
			continue
		}
		seenPattern[key] = true

		base := firstNonEmpty(trip.Route.ShortName, trip.Route.LongName, trip.Route.Id)
		perRoute[base]++
		name := base
		if n := perRoute[base]; n > 1 {
			name = fmt.Sprintf("%s#%d", base, n)
		}
		routes = append(routes, Route{Name: name, Stops: seq})
	}
	if len(stops) == 0 {
		return nil, fmt.Errorf("%w: gtfs feed has no located stops", ErrInvalidNetwork)
	}
	return New(stops, routes, nil)
}

// LoadGTFS reads a GTFS archive from a local path or an http(s) URL.
func LoadGTFS(source string) (*Network, error) {
	var data []byte
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("download gtfs: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download gtfs: HTTP %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read gtfs: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read gtfs: %w", err)
		}
	}
	return ParseGTFS(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
