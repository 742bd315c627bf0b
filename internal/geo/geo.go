package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// kmPerDegreeLat is the length of one degree of latitude.
const kmPerDegreeLat = 111.32

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) String() string { return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon) }

// Validate reports ErrInvalidCoordinate for NaN, infinite or out-of-range values.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidCoordinate, p)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: %v out of range", ErrInvalidCoordinate, p)
	}
	return nil
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h a hair above 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ClosestVertex scans poly and returns the vertex nearest to p and its index.
// Ties keep the first vertex. An empty polyline returns index -1.
func ClosestVertex(poly []Point, p Point) (Point, int) {
	if len(poly) == 0 {
		return Point{}, -1
	}
	best, bestIdx := poly[0], 0
	bestDist := DistanceKm(poly[0], p)
	for i, v := range poly[1:] {
		if d := DistanceKm(v, p); d < bestDist {
			best, bestIdx, bestDist = v, i+1, d
		}
	}
	return best, bestIdx
}

// Deltas returns the latitude and longitude spans, in degrees, that approximate
// meters around latitude lat. The longitude span widens with cos(lat).
func Deltas(lat, meters float64) (dLat, dLon float64) {
	dLat = meters / 1000 / kmPerDegreeLat
	c := math.Cos(lat * math.Pi / 180)
	if c < 1e-9 {
		return dLat, 180
	}
	return dLat, dLat / c
}

// WithinBox reports whether p lies inside the lat/lon box of the given radius
// around center.
func WithinBox(center, p Point, meters float64) bool {
	dLat, dLon := Deltas(center.Lat, meters)
	return math.Abs(p.Lat-center.Lat) <= dLat && math.Abs(p.Lon-center.Lon) <= dLon
}
