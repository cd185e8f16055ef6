package models

import "github.com/paulmach/orb"

// Category is a measurement column of a traffic counter: direction x vehicle class.
type Category string

// The six measurement categories reported by every counter.
const (
	UpLight          Category = "up_light"
	UpHeavy          Category = "up_heavy"
	UpUnclassified   Category = "up_unclassified"
	DownLight        Category = "down_light"
	DownHeavy        Category = "down_heavy"
	DownUnclassified Category = "down_unclassified"
)

// Categories lists every measurement category in a stable order.
var Categories = []Category{
	UpLight, UpHeavy, UpUnclassified,
	DownLight, DownHeavy, DownUnclassified,
}

// TrafficPoint is a single counter reading returned by the feature service.
type TrafficPoint struct {
	Location     orb.Point        // Location is [lon, lat].
	Measurements map[Category]int // Measurements holds vehicle counts; missing categories count as zero.
	PointCode    string           // PointCode is the external sensor identifier, if any.
}
