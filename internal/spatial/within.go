// Package spatial implements the client-side spatial join between counter
// readings and municipality boundaries.
//
// The feature service filters by bounding box only, so every returned point
// is re-checked against the true polygon shape. Containment is strict: a
// point lying on any ring of the polygon, outer or hole, is outside.
package spatial

import (
	"math"
	"slices"

	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const angleTolerance = 1e-12

// FilterWithin returns the points that lie strictly inside geometry,
// preserving their input order.
func FilterWithin(points []models.TrafficPoint, geometry orb.Geometry) []models.TrafficPoint {
	within := make([]models.TrafficPoint, 0, len(points))
	for _, point := range points {
		if ContainsStrict(geometry, point.Location) {
			within = append(within, point)
		}
	}

	return within
}

// ContainsStrict reports whether point lies in the interior of geometry.
// Only areal geometries (Ring, Polygon, MultiPolygon) can contain a point.
func ContainsStrict(geometry orb.Geometry, point orb.Point) bool {
	switch g := geometry.(type) {
	case orb.Ring:
		return polygonContainsStrict(orb.Polygon{g}, point)
	case orb.Polygon:
		return polygonContainsStrict(g, point)
	case orb.MultiPolygon:
		return multiPolygonContainsStrict(g, point)
	default:
		return false
	}
}

func polygonContainsStrict(polygon orb.Polygon, point orb.Point) bool {
	if len(polygon) == 0 || !polygon.Bound().Contains(point) {
		return false
	}

	for _, ring := range polygon {
		if onRing(ring, point) {
			return false
		}
	}

	if !insideRing(polygon[0], point) {
		return false
	}
	for _, hole := range polygon[1:] {
		if insideRing(hole, point) {
			return false
		}
	}

	return true
}

// multiPolygonContainsStrict handles members of one municipality that share
// edges. A point on such a seam is interior when every sector around it lies
// inside some member; points on the outer boundary stay outside.
func multiPolygonContainsStrict(multi orb.MultiPolygon, point orb.Point) bool {
	touching := false
	for _, polygon := range multi {
		if polygonContainsStrict(polygon, point) {
			return true
		}
		if !touching && onPolygon(polygon, point) {
			touching = true
		}
	}
	if !touching || len(multi) < 2 {
		return false
	}

	angles, radius := incidentEdges(multi, point)
	if len(angles) < 2 || radius <= 0 {
		return false
	}

	for i, from := range angles {
		to := angles[(i+1)%len(angles)]
		if i == len(angles)-1 {
			to += 2 * math.Pi
		}
		mid := (from + to) / 2
		sample := orb.Point{point.X() + radius*math.Cos(mid), point.Y() + radius*math.Sin(mid)}
		covered := slices.ContainsFunc(multi, func(polygon orb.Polygon) bool {
			return polygonContainsStrict(polygon, sample)
		})
		if !covered {
			return false
		}
	}

	return true
}

// incidentEdges returns the sorted directions of the edges leaving point and
// a radius below the distance to every other edge, so each sector between two
// neighbouring directions is either wholly inside a member or wholly outside.
func incidentEdges(multi orb.MultiPolygon, point orb.Point) ([]float64, float64) {
	var angles []float64
	radius := math.Inf(1)

	for _, polygon := range multi {
		for _, ring := range polygon {
			for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
				a, b := ring[j], ring[i]
				if a.Equal(b) {
					continue
				}
				if !onSegment(a, b, point) {
					radius = min(radius, planar.DistanceFromSegment(a, b, point))
					continue
				}
				for _, end := range []orb.Point{a, b} {
					if end.Equal(point) {
						continue
					}
					angles = append(angles, math.Atan2(end.Y()-point.Y(), end.X()-point.X()))
					radius = min(radius, planar.Distance(end, point))
				}
			}
		}
	}

	slices.Sort(angles)
	angles = slices.CompactFunc(angles, func(x, y float64) bool { return y-x < angleTolerance })
	if n := len(angles); n > 1 && angles[0]+2*math.Pi-angles[n-1] < angleTolerance {
		angles = angles[:n-1]
	}

	return angles, radius / 2
}

func onPolygon(polygon orb.Polygon, point orb.Point) bool {
	return slices.ContainsFunc(polygon, func(ring orb.Ring) bool {
		return onRing(ring, point)
	})
}

// insideRing is an even-odd ray cast towards +X. Callers must rule out
// boundary points first.
func insideRing(ring orb.Ring, point orb.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Y() > point.Y()) == (b.Y() > point.Y()) {
			continue
		}
		crossX := (b.X()-a.X())*(point.Y()-a.Y())/(b.Y()-a.Y()) + a.X()
		if point.X() < crossX {
			inside = !inside
		}
	}

	return inside
}

func onRing(ring orb.Ring, point orb.Point) bool {
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(ring[j], ring[i], point) {
			return true
		}
	}

	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b.X()-a.X())*(p.Y()-a.Y()) - (b.Y()-a.Y())*(p.X()-a.X())
	if cross != 0 {
		return false
	}

	return p.X() >= min(a.X(), b.X()) && p.X() <= max(a.X(), b.X()) &&
		p.Y() >= min(a.Y(), b.Y()) && p.Y() <= max(a.Y(), b.Y())
}
