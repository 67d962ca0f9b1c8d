package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
)

// DetectionTransformer implements Transformer by decoding a message body as
// a reading payload and normalizing the valid entries.
type DetectionTransformer struct {
	normalizer *domain.Normalizer
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewTransformer creates a DetectionTransformer.
func NewTransformer(n *domain.Normalizer, metrics *observability.Metrics, logger *slog.Logger) *DetectionTransformer {
	return &DetectionTransformer{
		normalizer: n,
		metrics:    metrics,
		logger:     logger,
	}
}

// Transform returns the detections carried by raw. A body that is not JSON
// fails with domain.ErrInvalidPayload; one without any usable depth fails
// with domain.ErrNoValidReadings.
func (t *DetectionTransformer) Transform(_ context.Context, raw domain.RawEvent) ([]domain.Detection, error) {
	readings, err := domain.DecodeReadings(raw.Value)
	if err != nil {
		return nil, err
	}

	detections := t.normalizer.NormalizeBatch(readings)
	dropped := len(readings) - len(detections)
	t.metrics.ReadingsReceived.Add(float64(len(readings)))
	t.metrics.ReadingsDropped.Add(float64(dropped))
	if dropped > 0 {
		t.logger.Debug("dropped readings without a valid depth",
			"dropped", dropped, "offset", raw.Offset, "key", string(raw.Key))
	}

	if len(detections) == 0 {
		return nil, domain.ErrNoValidReadings
	}
	return detections, nil
}
