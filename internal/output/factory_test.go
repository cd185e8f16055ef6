package output_test

import (
	"log/slog"
	"testing"

	"github.com/UnknownOlympus/muniflow/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := t.Context()
	logger := slog.Default()

	tests := []struct {
		name    string
		config  output.Config
		want    any
		wantErr string
	}{
		{
			name:   "csv",
			config: output.Config{Type: output.TypeCSV, Dir: t.TempDir(), Timecode: "202505130900"},
			want:   &output.CSVWriter{},
		},
		{
			name:   "empty type defaults to csv",
			config: output.Config{Dir: t.TempDir(), Timecode: "202505130900"},
			want:   &output.CSVWriter{},
		},
		{
			name:    "csv without directory",
			config:  output.Config{Type: output.TypeCSV},
			wantErr: "output directory is required",
		},
		{
			name: "kafka",
			config: output.Config{
				Type:         output.TypeKafka,
				KafkaBrokers: []string{"localhost:9092"},
				KafkaTopic:   "traffic-volumes",
			},
			want: &output.KafkaWriter{},
		},
		{
			name:    "kafka without brokers",
			config:  output.Config{Type: output.TypeKafka, KafkaTopic: "traffic-volumes"},
			wantErr: "at least one broker is required",
		},
		{
			name:    "kafka without topic",
			config:  output.Config{Type: output.TypeKafka, KafkaBrokers: []string{"localhost:9092"}},
			wantErr: "topic is required",
		},
		{
			name:    "postgres without host",
			config:  output.Config{Type: output.TypePostgres},
			wantErr: "database host and name are required",
		},
		{
			name:    "unsupported",
			config:  output.Config{Type: "parquet"},
			wantErr: "unsupported output type: parquet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Logger = logger

			writer, err := output.New(ctx, tt.config)

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, writer)
				return
			}

			require.NoError(t, err)
			assert.IsType(t, tt.want, writer)
			assert.NoError(t, writer.Close())
		})
	}
}
