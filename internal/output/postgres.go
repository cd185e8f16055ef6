package output

import (
	"context"

	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/UnknownOlympus/muniflow/internal/repository"
)

// PostgresWriter upserts results into the traffic_volumes table.
type PostgresWriter struct {
	repo  repository.Interface
	close func()
}

// NewPostgresWriter wraps a repository; closeFn releases the underlying pool.
func NewPostgresWriter(repo repository.Interface, closeFn func()) *PostgresWriter {
	return &PostgresWriter{repo: repo, close: closeFn}
}

func (w *PostgresWriter) Write(ctx context.Context, results []models.AggregateResult) error {
	return w.repo.SaveResults(ctx, results)
}

// Ping reports whether the database behind the writer answers.
func (w *PostgresWriter) Ping(ctx context.Context) error {
	return w.repo.Ping(ctx)
}

func (w *PostgresWriter) Close() error {
	if w.close != nil {
		w.close()
	}
	return nil
}
