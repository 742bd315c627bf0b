package geo

import (
	"math"
	"strings"
)

// Octant is one of the eight compass classes used to pick a directional icon.
type Octant string

const (
	OctantUnknown Octant = ""
	North         Octant = "N"
	NorthEast     Octant = "NE"
	East          Octant = "E"
	SouthEast     Octant = "SE"
	South         Octant = "S"
	SouthWest     Octant = "SW"
	West          Octant = "W"
	NorthWest     Octant = "NW"
)

var octants = []Octant{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// ParseOctant accepts the compass abbreviations in any case. Anything else is unknown.
func ParseOctant(s string) Octant {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, o := range octants {
		if string(o) == s {
			return o
		}
	}
	return OctantUnknown
}

// BearingDeg returns the initial bearing from a to b in [0, 360).
func BearingDeg(a, b Point) float64 {
	y := math.Sin((b.Lon-a.Lon)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lon-a.Lon)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// OctantFromBearing buckets a bearing in degrees into a compass octant.
func OctantFromBearing(bearing float64) Octant {
	if math.IsNaN(bearing) || math.IsInf(bearing, 0) {
		return OctantUnknown
	}
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return octants[int((b+22.5)/45.0)%8]
}
