package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	Calibration domain.Calibration

	StorageDriver string
	SQLitePath    string
	MySQLDSN      string
	MaxBuffer     int

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	defaults := domain.DefaultCalibration()
	baseline, err := parsePositiveFloat("BASELINE_DISTANCE_CM", defaults.BaselineDistanceCm)
	if err != nil {
		return nil, err
	}
	noise, err := parsePositiveFloat("SENSOR_NOISE_CM", defaults.SensorNoiseCm)
	if err != nil {
		return nil, err
	}

	maxBuffer, err := parseMaxBuffer()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     parseList(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),

		Calibration: domain.Calibration{
			BaselineDistanceCm: baseline,
			SensorNoiseCm:      noise,
		},

		StorageDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORAGE_DRIVER", "sqlite")),
		SQLitePath:    sharedcfg.EnvOrDefault("SQLITE_PATH", "data/detections.db"),
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		MaxBuffer:     maxBuffer,

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-pothole-readings"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "pothole-detections"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "pothole-monitor"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.StorageDriver {
	case "sqlite", "memory":
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, errors.New("STORAGE_DRIVER is mysql but MYSQL_DSN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func parseMaxBuffer() (int, error) {
	s := os.Getenv("MAX_BUFFER")
	if s == "" {
		return 200, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid MAX_BUFFER %q", s)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
