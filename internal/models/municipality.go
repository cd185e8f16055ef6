package models

import "github.com/paulmach/orb"

// Municipality is one boundary record loaded from the boundary dataset.
type Municipality struct {
	Code     string       // Code is the fixed-width municipality identifier (5-6 digits).
	Geometry orb.Geometry // Geometry is an orb.Polygon or orb.MultiPolygon in EPSG:4326.
}

// Bound returns the bounding box of the municipality geometry.
// It is derived on every call and never cached.
func (m Municipality) Bound() orb.Bound {
	return m.Geometry.Bound()
}
