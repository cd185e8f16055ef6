// Package output delivers aggregated traffic volumes to their destination.
package output

import (
	"context"

	"github.com/UnknownOlympus/muniflow/internal/models"
)

// Writer stores one run's results. A Write either stores every record or
// reports an error; partially written records are never left behind.
type Writer interface {
	Write(ctx context.Context, results []models.AggregateResult) error
	Close() error
}

// HealthChecker is implemented by writers backed by a service that can be
// checked from the monitoring server.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
