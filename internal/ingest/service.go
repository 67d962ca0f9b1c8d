// Package ingest turns raw readings into stored detections. It is shared by
// the HTTP API and the Kafka pipeline so both paths normalize, persist and
// publish the same way.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	"github.com/couchcryptid/pothole-monitor/internal/storage"
)

// DefaultMaxBuffer caps how many detections the feed returns.
const DefaultMaxBuffer = 200

// Publisher forwards stored detections downstream.
type Publisher interface {
	Publish(ctx context.Context, detections []domain.Detection) error
}

// Result summarizes one submission.
type Result struct {
	Received   int
	Stored     int
	Dropped    int
	Detections []domain.Detection
}

// Service normalizes, stores and publishes detections.
type Service struct {
	normalizer *domain.Normalizer
	store      storage.Store
	publisher  Publisher
	maxBuffer  int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewService wires the ingest path. publisher may be nil.
func NewService(n *domain.Normalizer, store storage.Store, publisher Publisher, maxBuffer int, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Service{
		normalizer: n,
		store:      store,
		publisher:  publisher,
		maxBuffer:  maxBuffer,
		metrics:    metrics,
		logger:     logger,
	}
}

// SubmitJSON decodes a POST body (one object or an array) and submits it.
func (s *Service) SubmitJSON(ctx context.Context, body []byte) (Result, error) {
	readings, err := domain.DecodeReadings(body)
	if err != nil {
		return Result{}, err
	}
	return s.Submit(ctx, readings)
}

// Submit normalizes the valid readings and stores them as one batch. Entries
// without a usable depth are dropped; if nothing survives the call fails with
// domain.ErrNoValidReadings and nothing is written.
func (s *Service) Submit(ctx context.Context, readings []domain.Reading) (Result, error) {
	detections := s.normalizer.NormalizeBatch(readings)
	res := Result{
		Received:   len(readings),
		Dropped:    len(readings) - len(detections),
		Detections: detections,
	}

	s.metrics.ReadingsReceived.Add(float64(res.Received))
	s.metrics.ReadingsDropped.Add(float64(res.Dropped))
	if res.Dropped > 0 {
		s.logger.Debug("dropped readings without a valid depth", "dropped", res.Dropped, "received", res.Received)
	}

	if len(detections) == 0 {
		return res, domain.ErrNoValidReadings
	}

	if err := s.LoadBatch(ctx, detections); err != nil {
		return res, err
	}
	res.Stored = len(detections)
	return res, nil
}

// LoadBatch stores already-normalized detections, then publishes them. A
// publish failure is logged and counted but does not fail the call.
func (s *Service) LoadBatch(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	if err := s.store.Insert(ctx, detections); err != nil {
		s.metrics.StoreErrors.Inc()
		return fmt.Errorf("store detections: %w", err)
	}

	s.metrics.DetectionsStored.Add(float64(len(detections)))
	for _, d := range detections {
		s.metrics.DetectionsBySeverity.WithLabelValues(string(d.Severity)).Inc()
	}
	s.logger.Info("detections stored", "count", len(detections), "latest_id", detections[len(detections)-1].ID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, detections); err != nil {
			s.metrics.PublishErrors.Inc()
			s.logger.Warn("publish detections failed", "error", err, "count", len(detections))
		}
	}
	return nil
}

// Latest returns up to the buffer limit of detections, newest first.
func (s *Service) Latest(ctx context.Context) ([]domain.Detection, error) {
	detections, err := s.store.Latest(ctx, s.maxBuffer)
	if err != nil {
		return nil, fmt.Errorf("load detections: %w", err)
	}
	if detections == nil {
		detections = []domain.Detection{}
	}
	return detections, nil
}

// Calibration returns the sensor calibration used for classification.
func (s *Service) Calibration() domain.Calibration {
	return s.normalizer.Calibration()
}

// CheckReadiness reports whether the store is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}
