// Command monitor serves the pothole detection API. It stores detections in
// SQLite, MySQL or memory and, when KAFKA_ENABLED=true, also consumes raw
// readings from Kafka and publishes canonical detections back.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/pothole-monitor/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/pothole-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/pothole-monitor/internal/config"
	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/ingest"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	"github.com/couchcryptid/pothole-monitor/internal/pipeline"
	"github.com/couchcryptid/pothole-monitor/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{
		Driver:     cfg.StorageDriver,
		SQLitePath: cfg.SQLitePath,
		MySQLDSN:   cfg.MySQLDSN,
		MaxBuffer:  cfg.MaxBuffer,
	})
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("store ready", "driver", cfg.StorageDriver)

	normalizer := domain.NewNormalizer(cfg.Calibration)

	var (
		publisher ingest.Publisher
		reader    *kafkaadapter.Reader
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers,
			"source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka disabled")
	}

	svc := ingest.NewService(normalizer, store, publisher, cfg.MaxBuffer, metrics, logger)
	ready := httpadapter.ReadinessCheckers{svc}

	var p *pipeline.Pipeline
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		transformer := pipeline.NewTransformer(normalizer, metrics, logger)
		p = pipeline.New(reader, transformer, svc, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:        cfg.HTTPAddr,
		CORSOrigins: cfg.CORSOrigins,
	}, svc, ready, metrics, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start Kafka ingest pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
