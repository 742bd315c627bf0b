package network

import (
	"strings"
	"unicode/utf8"
)

// Orientation says which way a vehicle runs along its catalog route.
type Orientation int

const (
	UnknownDirection Orientation = iota
	Forward
	Reverse
)

func (o Orientation) String() string {
	switch o {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

func (o Orientation) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Orientation) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forward":
		*o = Forward
	case "reverse":
		*o = Reverse
	default:
		*o = UnknownDirection
	}
	return nil
}

// Direction is a route with its stops listed in travel order.
type Direction struct {
	Route       Route       `json:"route"`
	Orientation Orientation `json:"orientation"`
}

var labelSeparators = []string{"→", "->", "=>", " to ", " - ", "–", "—", "-"}

// ParseDirectionLabel splits labels such as "bubt → ecb chattor",
// "Mirpur14 to BUBT" or "bubt-hemayetpur" into their start and end.
func ParseDirectionLabel(label string) (start, end string, ok bool) {
	label = strings.TrimSpace(label)
	for _, sep := range labelSeparators {
		i := indexFold(label, sep)
		if i <= 0 {
			continue
		}
		start = strings.TrimSpace(label[:i])
		end = strings.TrimSpace(label[i+len(sep):])
		if start != "" && end != "" {
			return start, end, true
		}
	}
	return "", "", false
}

// indexFold returns the byte offset in s of the first case-insensitive match
// of sep, or -1. Offsets always refer to s itself.
func indexFold(s, sep string) int {
	for i := 0; i+len(sep) <= len(s); i++ {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if strings.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

// lookupStop matches a stop name ignoring case and surrounding space.
func (n *Network) lookupStop(name string) (string, bool) {
	if _, ok := n.stopIdx[name]; ok {
		return name, true
	}
	for _, s := range n.stops {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s.Name, true
		}
	}
	return "", false
}

// ResolveDirection interprets a vehicle's direction label. The vehicle's
// assigned route is tried first, then every route in catalog order. A route
// matches when it serves both label stops; the stored order is reversed when
// the label runs against it. Unparsable labels or labels no route serves give
// UnknownDirection.
func (n *Network) ResolveDirection(vehicleID, label string) Direction {
	startRaw, endRaw, ok := ParseDirectionLabel(label)
	if !ok {
		return Direction{Orientation: UnknownDirection}
	}
	start, ok1 := n.lookupStop(startRaw)
	end, ok2 := n.lookupStop(endRaw)
	if !ok1 || !ok2 || start == end {
		return Direction{Orientation: UnknownDirection}
	}

	candidates := n.routes
	if r, ok := n.VehicleRoute(vehicleID); ok {
		candidates = append([]Route{r}, n.routes...)
	}
	for _, r := range candidates {
		si, ei := r.Index(start), r.Index(end)
		if si < 0 || ei < 0 {
			continue
		}
		if si < ei {
			return Direction{Route: Route{Name: r.Name, Stops: append([]string(nil), r.Stops...)}, Orientation: Forward}
		}
		return Direction{Route: r.Reversed(), Orientation: Reverse}
	}
	return Direction{Orientation: UnknownDirection}
}

// Label is the canonical direction label for a route in the given orientation.
func Label(r Route, o Orientation) string {
	if o == Reverse {
		return r.Last() + " → " + r.First()
	}
	return r.First() + " → " + r.Last()
}
