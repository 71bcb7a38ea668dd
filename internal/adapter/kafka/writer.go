package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/bathing-water-etl/internal/config"
	"github.com/couchcryptid/bathing-water-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes refreshed beach records to a Kafka topic.
// It implements pipeline.RecordLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadRecords serializes and publishes all records in a single
// WriteMessages call. Records are keyed by beach ID so every update for a
// beach lands on the same partition.
func (w *Writer) LoadRecords(ctx context.Context, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	w.logger.Info("records published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an OutputRecord into a Kafka message.
func serializeToMessage(record domain.OutputRecord) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", record.BeachID, err)
	}
	return kafkago.Message{
		Key:   []byte(record.BeachID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "name", Value: []byte(record.Name)},
			{Key: "updated_at", Value: []byte(record.UpdatedAt)},
		},
	}, nil
}
