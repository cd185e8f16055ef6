package wfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Errors produced while decoding a GetFeature response.
var (
	ErrServiceException   = errors.New("feature service reported an exception")
	ErrInvalidMeasurement = errors.New("invalid measurement value")
)

// Property names of the measurement layer.
var measurementKeys = map[models.Category]string{
	models.UpLight:          "上り・小型交通量",
	models.UpHeavy:          "上り・大型交通量",
	models.UpUnclassified:   "上り・車種判別不能交通量",
	models.DownLight:        "下り・小型交通量",
	models.DownHeavy:        "下り・大型交通量",
	models.DownUnclassified: "下り・車種判別不能交通量",
}

const pointCodeKey = "地点コード"

// exceptionReport is what GeoServer sends with exceptions=application/json.
type exceptionReport struct {
	Exceptions []struct {
		Code    string `json:"code"`
		Locator string `json:"locator"`
		Text    string `json:"text"`
	} `json:"exceptions"`
}

func (c *Client) decodeFeatures(ctx context.Context, body []byte) ([]models.TrafficPoint, error) {
	var report exceptionReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode feature response: %w", err)
	}
	if len(report.Exceptions) > 0 {
		first := report.Exceptions[0]
		return nil, fmt.Errorf("%w: %s: %s", ErrServiceException, first.Code, first.Text)
	}

	collection, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature response: %w", err)
	}

	points := make([]models.TrafficPoint, 0, len(collection.Features))
	for idx, feature := range collection.Features {
		location, ok := pointOf(feature.Geometry)
		if !ok {
			c.log.DebugContext(ctx, "Skipping feature without point geometry",
				"feature", idx, "geometry", geometryType(feature.Geometry))
			continue
		}

		point, err := readingOf(feature.Properties)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", idx, err)
		}
		point.Location = location
		points = append(points, point)
	}

	return points, nil
}

func geometryType(geometry orb.Geometry) string {
	if geometry == nil {
		return "none"
	}
	return geometry.GeoJSONType()
}

// pointOf extracts the counter location. The service emits MultiPoint
// geometries holding a single coordinate.
func pointOf(geometry orb.Geometry) (orb.Point, bool) {
	switch g := geometry.(type) {
	case orb.Point:
		return g, true
	case orb.MultiPoint:
		if len(g) == 0 {
			return orb.Point{}, false
		}
		return g[0], true
	default:
		return orb.Point{}, false
	}
}

func readingOf(props geojson.Properties) (models.TrafficPoint, error) {
	point := models.TrafficPoint{
		Measurements: make(map[models.Category]int, len(measurementKeys)),
	}

	for category, key := range measurementKeys {
		count, err := toCount(props[key])
		if err != nil {
			return models.TrafficPoint{}, fmt.Errorf("%s: %w", key, err)
		}
		point.Measurements[category] = count
	}

	switch code := props[pointCodeKey].(type) {
	case string:
		point.PointCode = code
	case float64:
		point.PointCode = strconv.FormatFloat(code, 'f', -1, 64)
	}

	return point, nil
}

// toCount accepts JSON numbers and numeric strings; absent values count as zero.
func toCount(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(math.Trunc(v)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidMeasurement, v)
		}
		return int(math.Trunc(f)), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidMeasurement, v)
	}
}
