//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/pothole-monitor/internal/config"
	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/ingest"
	"github.com/couchcryptid/pothole-monitor/internal/observability"
	"github.com/couchcryptid/pothole-monitor/internal/pipeline"
	"github.com/couchcryptid/pothole-monitor/internal/storage"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("pothole-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newProducer(t *testing.T, broker string) *kafkago.Writer {
	t.Helper()
	w := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func fixedNormalizer() *domain.Normalizer {
	return domain.NewNormalizer(domain.DefaultCalibration())
}

// publishedDetection holds a detection read back from the sink topic.
type publishedDetection struct {
	Detection domain.Detection
	Key       string
	Headers   map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedDetection {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var d domain.Detection
	require.NoError(t, json.Unmarshal(msg.Value, &d), "unmarshal sink message")
	return publishedDetection{Detection: d, Key: string(msg.Key), Headers: headers}
}

// TestKafkaReaderWriter round-trips a reading through the source topic and
// a detection through the sink topic.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"depth":3.9,"location":"Ruta demo","source":"HC-05","raw":"BACHE 3.90"}`)
	require.NoError(t, newProducer(t, broker).WriteMessages(ctx, kafkago.Message{
		Key:   []byte("frame-1"),
		Value: payload,
	}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// The consumer group may need a rebalance before partitions are assigned.
	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("frame-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	tfm := pipeline.NewTransformer(fixedNormalizer(), observability.NewMetricsForTesting(), discardLogger())
	detections, err := tfm.Transform(ctx, raw)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Publish(ctx, detections))

	got := readPublished(ctx, t, newSinkConsumer(t, broker))
	assert.Equal(t, detections[0].ID, got.Key)
	assert.Equal(t, "Media", got.Headers["severity"])
	assert.Equal(t, "HC-05", got.Headers["source"])
	assert.Equal(t, detections[0], got.Detection)
}

// TestPipelineEndToEnd runs the Kafka reader into the ingest service, which
// stores detections and republishes them on the sink topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	seeds := domain.SeedReadings()
	msgs := make([]kafkago.Message, 0, len(seeds))
	for i, r := range seeds {
		payload, err := json.Marshal(r)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("seed-%d", i)), Value: payload})
	}
	require.NoError(t, newProducer(t, broker).WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	store := storage.NewMemoryStore(ingest.DefaultMaxBuffer)
	svc := ingest.NewService(fixedNormalizer(), store, writer, ingest.DefaultMaxBuffer, metrics, discardLogger())
	tfm := pipeline.NewTransformer(fixedNormalizer(), metrics, discardLogger())
	p := pipeline.New(reader, tfm, svc, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	received := make(map[string]publishedDetection, len(seeds))
	for len(received) < len(seeds) {
		pd := readPublished(ctx, t, consumer)
		received[pd.Key] = pd
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, want := range domain.SeedDetections() {
		got, ok := received[want.ID]
		require.True(t, ok, "missing %s on sink topic", want.ID)
		assert.Equal(t, want, got.Detection)
		assert.Equal(t, string(want.Severity), got.Headers["severity"])
		assert.Equal(t, want.Source, got.Headers["source"])
	}

	stored, err := store.Latest(ctx, ingest.DefaultMaxBuffer)
	require.NoError(t, err)
	assert.Len(t, stored, len(seeds))
}

// TestPipelineTransformError verifies a poison message is skipped and the
// pipeline keeps consuming.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	require.NoError(t, newProducer(t, broker).WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("negative"), Value: []byte(`{"depth":-1}`)},
		kafkago.Message{Key: []byte("good"), Value: []byte(`{"id":"run-good","depth":6.5,"source":"USB"}`)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	store := storage.NewMemoryStore(ingest.DefaultMaxBuffer)
	svc := ingest.NewService(fixedNormalizer(), store, writer, ingest.DefaultMaxBuffer, metrics, discardLogger())
	p := pipeline.New(reader, pipeline.NewTransformer(fixedNormalizer(), metrics, discardLogger()),
		svc, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	got := readPublished(ctx, t, consumer)
	assert.Equal(t, "run-good", got.Key)
	assert.Equal(t, domain.SeverityHigh, got.Detection.Severity)
	assert.Equal(t, "Alta", got.Headers["severity"])

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)

	stored, err := store.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "run-good", stored[0].ID)
}
