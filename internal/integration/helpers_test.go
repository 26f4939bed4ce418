//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/crop-kc-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crop-kc-etl/internal/config"
	"github.com/couchcryptid/crop-kc-etl/internal/cropdb"
	"github.com/couchcryptid/crop-kc-etl/internal/observability"
	"github.com/couchcryptid/crop-kc-etl/internal/pipeline"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

const (
	kafkaImage      = "confluentinc/confluent-local:7.5.0"
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("crop-kc-etl-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadMockData reads the observation fixture shared with the pipeline tests.
func loadMockData(t *testing.T) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", "field_observations.json"))
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func newTransformer(t *testing.T) *pipeline.KcTransformer {
	t.Helper()
	cat, err := cropdb.Default()
	require.NoError(t, err)
	return pipeline.NewTransformer(cat, season.NewTracker(season.DefaultMaxEntries), discardLogger())
}

// newBroker starts a broker with the source and sink topics in place.
func newBroker(ctx context.Context, t *testing.T) string {
	t.Helper()
	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	return broker
}

// testConfig returns adapter settings with a consumer group unique to the run.
func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       uniqueGroup(group),
		BatchFlushInterval: 5 * time.Second,
	}
}

func uniqueGroup(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

// publish writes msgs to the source topic.
func publish(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

// sinkConsumer reads the sink topic from the beginning.
func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     uniqueGroup("test-sink"),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// runPipeline wires a pipeline over the real adapters and runs it in the
// background. The returned stop func cancels it and checks a clean exit.
func runPipeline(ctx context.Context, t *testing.T, cfg *config.Config) (*pipeline.Pipeline, func()) {
	t.Helper()

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, newTransformer(t), writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	return p, func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}
