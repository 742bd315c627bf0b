package geo

import "github.com/paulmach/orb"

// LineString converts a polyline to an orb geometry (lon, lat order).
func LineString(poly []Point) orb.LineString {
	ls := make(orb.LineString, len(poly))
	for i, p := range poly {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}
