package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/muniflow/internal/models"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaWriter publishes one message per municipality, keyed by its code.
type KafkaWriter struct {
	writer messageWriter
	log    *slog.Logger
}

// NewKafkaWriter creates a producer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string, log *slog.Logger) *KafkaWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaWriter{writer: w, log: log}
}

// Write publishes all results in a single WriteMessages call.
func (w *KafkaWriter) Write(ctx context.Context, results []models.AggregateResult) error {
	if len(results) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(results))
	for i := range results {
		msg, err := serializeToMessage(results[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish traffic volumes: %w", err)
	}
	w.log.DebugContext(ctx, "Traffic volumes published", "count", len(msgs))

	return nil
}

func (w *KafkaWriter) Close() error {
	return w.writer.Close()
}

func serializeToMessage(res models.AggregateResult) (kafkago.Message, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize traffic volume: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(res.MunicipalityCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "timecode", Value: []byte(res.Timecode)},
		},
	}, nil
}
