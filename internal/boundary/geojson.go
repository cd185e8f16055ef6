package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

func readGeoJSON(path string) (*layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrDataUnavailable, path, err)
	}

	columns, err := propertyOrder(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrDataUnavailable, path, err)
	}

	data := &layer{
		columns: columns,
		records: make([]record, 0, len(collection.Features)),
	}
	for _, feature := range collection.Features {
		attrs := make(map[string]string, len(feature.Properties))
		for key, value := range feature.Properties {
			attrs[key] = attributeText(value)
		}
		data.records = append(data.records, record{attrs: attrs, geometry: feature.Geometry})
	}

	return data, nil
}

// propertyOrder lists property names in the order they are first declared
// across all features. Decoding into a map loses that order.
func propertyOrder(raw []byte) ([]string, error) {
	var envelope struct {
		Features []struct {
			Properties json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}

	var (
		columns []string
		seen    = make(map[string]struct{})
	)
	for _, feature := range envelope.Features {
		keys, err := objectKeys(feature.Properties)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				columns = append(columns, key)
			}
		}
	}

	return columns, nil
}

func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var keys []string
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected property key %v", token)
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err = dec.Decode(&skip); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

// attributeText renders a decoded attribute value as the text used for codes.
func attributeText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
