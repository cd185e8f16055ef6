package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/muniflow/internal/repository"
)

// Type represents the kind of output destination.
type Type string

const (
	// TypeCSV writes a CSV file per timecode.
	TypeCSV Type = "csv"
	// TypePostgres upserts into the traffic_volumes table.
	TypePostgres Type = "postgres"
	// TypeKafka publishes one message per municipality.
	TypeKafka Type = "kafka"
)

// PostgresConfig holds the connection settings of the postgres output.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Config holds configuration for creating an output writer.
type Config struct {
	Type         Type           // Type of writer to create
	Timecode     string         // Timecode of the run (used in the CSV file name)
	Dir          string         // Dir of the CSV file
	KafkaBrokers []string       // KafkaBrokers of the kafka output
	KafkaTopic   string         // KafkaTopic of the kafka output
	Postgres     PostgresConfig // Postgres connection of the postgres output
	Logger       *slog.Logger   // Logger for the writer
}

// New creates an output writer based on the provided configuration.
//
// Supported types:
// - "csv": local CSV file (default)
// - "postgres": traffic_volumes table, created when missing
// - "kafka": one JSON message per result
func New(ctx context.Context, config Config) (Writer, error) {
	switch config.Type {
	case TypeCSV, "":
		return newCSVWriter(config)
	case TypePostgres:
		return newPostgresWriter(ctx, config)
	case TypeKafka:
		return newKafkaWriter(config)
	default:
		return nil, fmt.Errorf("unsupported output type: %s", config.Type)
	}
}

func newCSVWriter(config Config) (Writer, error) {
	if config.Dir == "" {
		return nil, errors.New("output directory is required for csv output")
	}

	return NewCSVWriter(config.Dir, config.Timecode), nil
}

func newPostgresWriter(ctx context.Context, config Config) (Writer, error) {
	pg := config.Postgres
	if pg.Host == "" || pg.Name == "" {
		return nil, errors.New("database host and name are required for postgres output")
	}

	pool, err := repository.NewDatabase(ctx, pg.Host, pg.Port, pg.User, pg.Password, pg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	repo := repository.NewRepository(pool, config.Logger)
	if err = repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresWriter(repo, pool.Close), nil
}

func newKafkaWriter(config Config) (Writer, error) {
	if len(config.KafkaBrokers) == 0 {
		return nil, errors.New("at least one broker is required for kafka output")
	}
	if config.KafkaTopic == "" {
		return nil, errors.New("topic is required for kafka output")
	}

	return NewKafkaWriter(config.KafkaBrokers, config.KafkaTopic, config.Logger), nil
}
