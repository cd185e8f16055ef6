// Package wfs talks to the JARTIC open-traffic GeoServer: it builds CQL
// filtered GetFeature queries and fetches counter readings with retries.
package wfs

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
)

// Fixed envelope of every GetFeature request.
const (
	ServiceName   = "WFS"
	Version       = "2.0.0"
	RequestType   = "GetFeature"
	OutputFormat  = "application/json"
	DefaultSRS    = "EPSG:4326"
	DefaultLayer  = "t_travospublic_measure_5m"
	DefaultServer = "https://api.jartic-open-traffic.org/geoserver"
)

// Attribute names of the measurement layer used in the CQL filter.
const (
	roadTypeAttr = "道路種別"
	timecodeAttr = "時間コード"
	geometryAttr = "ジオメトリ"
)

// QueryParams holds the fixed, per-run part of every query.
type QueryParams struct {
	RoadType string // RoadType is the road classification code, e.g. "3" for national routes.
	Timecode string // Timecode is the YYYYMMDDhhmm token of the requested 5-minute slot.
	TypeName string // TypeName is the layer to query; DefaultLayer when empty.
	SRSName  string // SRSName is the spatial reference; DefaultSRS when empty.
}

// QuerySpec is a fully formed GetFeature request.
type QuerySpec struct {
	TypeName  string
	SRSName   string
	CQLFilter string
}

// BuildQuery combines road type, timecode and bounding box predicates into
// one GetFeature query. It is pure: equal inputs give equal queries.
func BuildQuery(bbox orb.Bound, params QueryParams) QuerySpec {
	typeName := params.TypeName
	if typeName == "" {
		typeName = DefaultLayer
	}
	srs := params.SRSName
	if srs == "" {
		srs = DefaultSRS
	}

	filter := fmt.Sprintf("%s='%s' AND %s=%s AND BBOX(%s,%s,%s,%s,%s,'%s')",
		roadTypeAttr, params.RoadType,
		timecodeAttr, params.Timecode,
		geometryAttr,
		formatCoord(bbox.Min.X()), formatCoord(bbox.Min.Y()),
		formatCoord(bbox.Max.X()), formatCoord(bbox.Max.Y()),
		srs,
	)

	return QuerySpec{
		TypeName:  typeName,
		SRSName:   srs,
		CQLFilter: filter,
	}
}

// Values renders the query as URL parameters.
func (q QuerySpec) Values() url.Values {
	return url.Values{
		"service":      {ServiceName},
		"version":      {Version},
		"request":      {RequestType},
		"typeNames":    {q.TypeName},
		"srsName":      {q.SRSName},
		"outputFormat": {OutputFormat},
		"exceptions":   {OutputFormat},
		"cql_filter":   {q.CQLFilter},
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
