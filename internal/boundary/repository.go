// Package boundary loads municipal boundary polygons and resolves which
// attribute of the dataset carries the municipality code.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/paulmach/orb"
)

// ErrDataUnavailable is returned when the boundary dataset is missing or unreadable.
var ErrDataUnavailable = errors.New("boundary dataset unavailable")

// Source names one layer of a boundary dataset.
type Source struct {
	Path       string // Path to a .gpkg, .geojson or .json file.
	Layer      string // Layer of a GeoPackage; the first feature table when empty.
	CodeColumn string // CodeColumn overrides identifier resolution when set.
}

// Interface is what the aggregation pipeline needs from a boundary store.
type Interface interface {
	Load(ctx context.Context, src Source) ([]models.Municipality, error)
}

// record is one row of a boundary layer with its attributes rendered as text.
type record struct {
	attrs    map[string]string
	geometry orb.Geometry
}

// layer is a decoded boundary layer with its columns in declaration order.
type layer struct {
	columns    []string
	records    []record
	srsWarning string
}

// Repository reads boundary datasets from the local file system.
type Repository struct {
	rules IdentifierRules
	log   *slog.Logger
}

// NewRepository creates a repository resolving identifier columns with the given rules.
func NewRepository(rules IdentifierRules, log *slog.Logger) *Repository {
	return &Repository{rules: rules, log: log}
}

// Load reads the layer, resolves the identifier column and returns one
// municipality per distinct code in first-seen order. Records sharing a
// code are dissolved into one multipolygon; spatial.ContainsStrict treats
// edges shared by its members as interior.
func (r *Repository) Load(ctx context.Context, src Source) ([]models.Municipality, error) {
	var (
		data *layer
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(src.Path)); ext {
	case ".gpkg":
		data, err = readGeoPackage(ctx, src.Path, src.Layer)
	case ".geojson", ".json":
		data, err = readGeoJSON(src.Path)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrDataUnavailable, ext)
	}
	if err != nil {
		return nil, err
	}
	if data.srsWarning != "" {
		r.log.WarnContext(ctx, "Boundary layer is not in EPSG:4326", "detail", data.srsWarning)
	}

	column := src.CodeColumn
	if column == "" {
		column, err = ResolveIdentifierColumn(data.columns, data.samples(), r.rules)
		if err != nil {
			return nil, err
		}
	} else if !slices.Contains(data.columns, column) {
		return nil, &IdentifierColumnNotFoundError{Columns: data.columns}
	}
	r.log.InfoContext(ctx, "Resolved identifier column", "column", column, "path", src.Path)

	municipalities := r.dissolve(ctx, data, column)
	r.log.InfoContext(ctx, "Loaded municipalities", "count", len(municipalities), "records", len(data.records))

	return municipalities, nil
}

func (r *Repository) dissolve(ctx context.Context, data *layer, column string) []models.Municipality {
	var (
		order []string
		parts = make(map[string][]orb.Polygon)
	)

	for idx, rec := range data.records {
		code := strings.TrimSpace(rec.attrs[column])
		if code == "" {
			r.log.WarnContext(ctx, "Skipping boundary record without code", "record", idx)
			continue
		}

		polygons := polygonsOf(rec.geometry)
		if len(polygons) == 0 {
			r.log.WarnContext(ctx, "Skipping boundary record without areal geometry", "municipality", code)
			continue
		}

		if _, seen := parts[code]; !seen {
			order = append(order, code)
		}
		parts[code] = append(parts[code], polygons...)
	}

	municipalities := make([]models.Municipality, 0, len(order))
	for _, code := range order {
		var geometry orb.Geometry = orb.MultiPolygon(parts[code])
		if len(parts[code]) == 1 {
			geometry = parts[code][0]
		}
		municipalities = append(municipalities, models.Municipality{Code: code, Geometry: geometry})
	}

	return municipalities
}

// Filter keeps the municipalities whose code is listed, preserving order.
// An empty list keeps everything.
func Filter(municipalities []models.Municipality, codes []string) []models.Municipality {
	if len(codes) == 0 {
		return municipalities
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[strings.TrimSpace(code)] = struct{}{}
	}

	kept := make([]models.Municipality, 0, len(codes))
	for _, m := range municipalities {
		if _, ok := wanted[m.Code]; ok {
			kept = append(kept, m)
		}
	}

	return kept
}

// samples returns the first non-empty value of every column.
func (l *layer) samples() map[string]string {
	samples := make(map[string]string, len(l.columns))
	for _, rec := range l.records {
		for column, value := range rec.attrs {
			if _, ok := samples[column]; !ok && strings.TrimSpace(value) != "" {
				samples[column] = value
			}
		}
	}

	return samples
}

// polygonsOf returns the non-empty polygons of an areal geometry.
func polygonsOf(geometry orb.Geometry) []orb.Polygon {
	var candidates []orb.Polygon

	switch g := geometry.(type) {
	case orb.Polygon:
		candidates = []orb.Polygon{g}
	case orb.MultiPolygon:
		candidates = g
	default:
		return nil
	}

	polygons := make([]orb.Polygon, 0, len(candidates))
	for _, p := range candidates {
		if len(p) > 0 && len(p[0]) >= 3 {
			polygons = append(polygons, p)
		}
	}

	return polygons
}
