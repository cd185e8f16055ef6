// Package volume reduces traffic counter readings into volume figures.
package volume

import "github.com/UnknownOlympus/muniflow/internal/models"

// Sum returns the vehicle count of a single reading across all six categories.
// Categories absent from the reading contribute zero.
func Sum(point models.TrafficPoint) int64 {
	var total int64
	for _, category := range models.Categories {
		total += int64(point.Measurements[category])
	}

	return total
}

// Aggregate sums the readings of every point and counts the points.
// An empty input yields (0, 0).
func Aggregate(points []models.TrafficPoint) (int64, int) {
	var total int64
	for _, point := range points {
		total += Sum(point)
	}

	return total, len(points)
}
