package models

// AggregateResult is the traffic volume of one municipality at one timecode.
type AggregateResult struct {
	MunicipalityCode string `json:"municipality_code"`
	Timecode         string `json:"timecode"`
	TotalVolume      int64  `json:"total_volume"`
	PointCount       int    `json:"point_count"`
}
