package isochrone

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// earthRadiusKm is the mean Earth radius used for area calculations.
const earthRadiusKm = 6371.0088

// Ring returns the contour polygon as an orb ring in lon/lat order.
func (c Contour) Ring() orb.Ring {
	ring := make(orb.Ring, len(c.Polygon))
	for i, p := range c.Polygon {
		ring[i] = orb.Point{p.Lon, p.Lat}
	}
	return ring
}

// AreaKm2 returns the geodesic area enclosed by the contour in square kilometers.
func (c Contour) AreaKm2() float64 {
	return RingAreaKm2(c.Polygon)
}

// Bound returns the bounding box of every contour in the result.
// The origin is always included.
func (r *Result) Bound() orb.Bound {
	b := orb.Point{r.Origin.Lon, r.Origin.Lat}.Bound()
	for _, c := range r.Contours {
		if len(c.Polygon) == 0 {
			continue
		}
		b = b.Union(c.Ring().Bound())
	}
	return b
}

// MaxAreaKm2 returns the area of the largest contour.
func (r *Result) MaxAreaKm2() float64 {
	largest := 0.0
	for _, c := range r.Contours {
		largest = math.Max(largest, c.AreaKm2())
	}
	return largest
}

// RingAreaKm2 computes the spherical area of a lat/lon ring in square kilometers.
// A closing vertex equal to the first one is ignored. Rings with fewer than
// three distinct vertices have zero area.
func RingAreaKm2(ring []Coordinate) float64 {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return 0
	}

	points := make([]s2.Point, len(ring))
	for i, c := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon))
	}

	loop := s2.LoopFromPoints(points)
	// Winding order is not guaranteed; always measure the smaller side.
	loop.Normalize()

	return loop.Area() * earthRadiusKm * earthRadiusKm
}

// FeatureCollection exports results as GeoJSON, one polygon feature per contour.
func FeatureCollection(results ...*Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, r := range results {
		if r == nil {
			continue
		}
		for _, c := range r.Contours {
			f := geojson.NewFeature(orb.Polygon{c.Ring()})
			f.Properties["contour"] = c.Value
			f.Properties["metric"] = string(r.ContourType)
			f.Properties["units"] = r.Label()
			f.Properties["mode"] = string(r.Profile)
			f.Properties["area_km2"] = math.Round(c.AreaKm2()*1000) / 1000
			if c.Color != "" {
				f.Properties["color"] = "#" + c.Color
			}
			if c.Meters != 0 {
				f.Properties["meters"] = c.Meters
			}
			if r.ID != "" {
				f.Properties["id"] = r.ID
			}
			fc.Append(f)
		}
	}

	return fc
}
