package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/pothole-monitor/internal/config"
	"github.com/couchcryptid/pothole-monitor/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces canonical detections to the sink topic.
// It implements ingest.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and publishes detections in a single WriteMessages
// call. Messages are keyed by detection ID so repeats land on one partition.
func (w *Writer) Publish(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(detections))
	for i := range detections {
		msg, err := serializeToMessage(detections[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write detections: %w", err)
	}
	w.logger.Debug("detections published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Detection into a Kafka message.
func serializeToMessage(d domain.Detection) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize detection: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(d.Severity)},
			{Key: "source", Value: []byte(d.Source)},
		},
	}, nil
}
