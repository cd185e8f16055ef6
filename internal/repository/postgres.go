package repository

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/jackc/pgx/v5"
)

// EnsureSchema creates the traffic_volumes table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS traffic_volumes (
			municipality_code TEXT NOT NULL,
			timecode TEXT NOT NULL,
			total_volume BIGINT NOT NULL,
			point_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (municipality_code, timecode)
		);
	`

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create traffic_volumes table: %w", err)
	}

	return nil
}

// SaveResults upserts all results in one transaction, so a run is stored
// completely or not at all. A rerun for the same timecode overwrites the
// previous totals.
func (r *Repository) SaveResults(ctx context.Context, results []models.AggregateResult) error {
	query := `
		INSERT INTO traffic_volumes (municipality_code, timecode, total_volume, point_count, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (municipality_code, timecode) DO UPDATE
		SET
			total_volume = EXCLUDED.total_volume,
			point_count = EXCLUDED.point_count,
			updated_at = now();
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, res := range results {
		_, err = tx.Exec(ctx, query, res.MunicipalityCode, res.Timecode, res.TotalVolume, res.PointCount)
		if err != nil {
			r.rollback(ctx, tx)
			return fmt.Errorf("failed to upsert traffic volume for %s: %w", res.MunicipalityCode, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit traffic volumes: %w", err)
	}

	r.log.DebugContext(ctx, "Traffic volumes saved", "count", len(results))

	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *Repository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		r.log.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
	}
}
