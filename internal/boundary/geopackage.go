package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const wgs84 = 4326

var errInvalidGeometryBlob = errors.New("invalid GeoPackage geometry blob")

func readGeoPackage(ctx context.Context, path, layerName string) (*layer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrDataUnavailable, path, err)
	}
	defer db.Close()

	if layerName == "" {
		err = db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`,
		).Scan(&layerName)
		if err != nil {
			return nil, fmt.Errorf("%w: no feature table in %s: %w", ErrDataUnavailable, path, err)
		}
	}

	var (
		geomColumn string
		srsID      int
	)
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, layerName,
	).Scan(&geomColumn, &srsID)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %q not found in %s: %w", ErrDataUnavailable, layerName, path, err)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(layerName))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read layer %q: %w", ErrDataUnavailable, layerName, err)
	}
	defer rows.Close()

	allColumns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read layer %q: %w", ErrDataUnavailable, layerName, err)
	}

	data := &layer{}
	for _, column := range allColumns {
		if column != geomColumn {
			data.columns = append(data.columns, column)
		}
	}

	values := make([]any, len(allColumns))
	pointers := make([]any, len(allColumns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err = rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("%w: failed to scan layer %q: %w", ErrDataUnavailable, layerName, err)
		}

		rec := record{attrs: make(map[string]string, len(data.columns))}
		for i, column := range allColumns {
			if column != geomColumn {
				rec.attrs[column] = attributeText(values[i])
				continue
			}

			blob, _ := values[i].([]byte)
			if rec.geometry, err = decodeGeometryBlob(blob); err != nil {
				return nil, fmt.Errorf("%w: layer %q: %w", ErrDataUnavailable, layerName, err)
			}
		}
		data.records = append(data.records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read layer %q: %w", ErrDataUnavailable, layerName, err)
	}

	if srsID != wgs84 {
		data.srsWarning = fmt.Sprintf("layer %q uses srs_id %d, coordinates are read as EPSG:4326", layerName, srsID)
	}

	return data, nil
}

// decodeGeometryBlob strips the GeoPackage binary header and decodes the WKB
// payload. An empty geometry decodes to nil.
func decodeGeometryBlob(blob []byte) (orb.Geometry, error) {
	const headerSize = 8

	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < headerSize || blob[0] != 'G' || blob[1] != 'P' {
		return nil, errInvalidGeometryBlob
	}

	flags := blob[3]
	if flags&0x10 != 0 {
		return nil, nil
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelope = 0
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("%w: envelope indicator %d", errInvalidGeometryBlob, (flags>>1)&0x07)
	}

	offset := headerSize + envelope
	if len(blob) <= offset {
		return nil, fmt.Errorf("%w: truncated", errInvalidGeometryBlob)
	}

	geometry, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidGeometryBlob, err)
	}

	return geometry, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
