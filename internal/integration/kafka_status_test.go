//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/compound-floodrisk/sfincs-batch/internal/adapter/kafka"
	"github.com/compound-floodrisk/sfincs-batch/internal/config"
	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/pipeline"
	"github.com/compound-floodrisk/sfincs-batch/internal/postprocess"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

const testStatusTopic = "test-run-status"

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("sfincs-batch-test"))
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
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// localModel is a LocalExecutor stand-in that only post-processes, so the
// test needs no model binary.
type localModel struct {
	post *postprocess.Processor
}

func (localModel) Name() string { return "synthetic" }

func (m localModel) Execute(ctx context.Context, root string) (pipeline.Result, error) {
	if err := os.WriteFile(filepath.Join(root, domain.MarkerFile), []byte("done\n"), 0o644); err != nil {
		return pipeline.Result{}, err
	}
	rep, err := m.post.Process(ctx, root)
	return pipeline.Result{Report: rep}, err
}

// TestBatchPublishesRunStatus runs a two-scenario batch over synthetic run
// directories and reads the published status records back from Kafka.
func TestBatchPublishesRunStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStatusTopic)

	modelDir := t.TempDir()
	for _, dir := range []string{"qb010", "qb010_dt0"} {
		syn := sfincs.NewSynthetic(domain.Shape{Rows: 6, Cols: 9}, 3, 3)
		require.NoError(t, syn.Write(filepath.Join(modelDir, dir)))
	}

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testStatusTopic}
	pub := kafka.NewPublisher(cfg, slog.Default())
	defer pub.Close()

	metrics := observability.NewMetricsForTesting()
	post := postprocess.New(nil, slog.Default(), metrics, postprocess.DefaultOptions())
	p := pipeline.New(staticSource{"qb010"}, localModel{post: post}, pub, slog.Default(), metrics,
		pipeline.Options{ModelDir: modelDir, Suffixes: []string{"", "_dt0"}})

	sum, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testStatusTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	var states []domain.RunState
	for range 4 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read status message")

		var st domain.RunStatus
		require.NoError(t, json.Unmarshal(msg.Value, &st))
		assert.Equal(t, st.Scenario.Dir(), string(msg.Key))
		states = append(states, st.State)
	}
	assert.Equal(t, []domain.RunState{
		domain.StateRunning, domain.StateSucceeded,
		domain.StateRunning, domain.StateSucceeded,
	}, states)

	for _, dir := range []string{"qb010", "qb010_dt0"} {
		assert.FileExists(t, filepath.Join(modelDir, dir, postprocess.RasterPath))
	}
}

type staticSource []string

func (s staticSource) ScenarioNames(context.Context) ([]string, error) { return s, nil }
