package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/UnknownOlympus/muniflow/internal/models"
)

var csvHeader = []string{"municipality_code", "timecode", "total_volume", "point_count"}

// CSVWriter writes results to <dir>/traffic_by_municipality_<timecode>.csv.
type CSVWriter struct {
	dir      string
	timecode string
}

// NewCSVWriter creates a writer for the given output directory and timecode.
func NewCSVWriter(dir, timecode string) *CSVWriter {
	return &CSVWriter{dir: dir, timecode: timecode}
}

// Path returns the file the results are written to.
func (w *CSVWriter) Path() string {
	return filepath.Join(w.dir, fmt.Sprintf("traffic_by_municipality_%s.csv", w.timecode))
}

// Write renders all results into a temporary file and renames it into place.
func (w *CSVWriter) Write(_ context.Context, results []models.AggregateResult) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".traffic_by_municipality_*.csv.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err = writeCSV(tmp, results); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary output file: %w", err)
	}

	if err = os.Rename(tmp.Name(), w.Path()); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}

	return nil
}

func (w *CSVWriter) Close() error {
	return nil
}

func writeCSV(file *os.File, results []models.AggregateResult) error {
	cw := csv.NewWriter(file)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, res := range results {
		row := []string{
			res.MunicipalityCode,
			res.Timecode,
			strconv.FormatInt(res.TotalVolume, 10),
			strconv.Itoa(res.PointCount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", res.MunicipalityCode, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}
