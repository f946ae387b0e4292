package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/compound-floodrisk/sfincs-batch/internal/config"
	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// Publisher produces run status records to a Kafka topic.
// It implements pipeline.StatusPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured status topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		// One message per state change; don't wait for a batch to fill.
		BatchTimeout: 20 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes st keyed by its run directory so every state change of a
// scenario lands on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, st domain.RunStatus) error {
	msg, err := statusToMessage(st)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run status: %w", err)
	}
	p.logger.Debug("run status published", "scenario", st.Scenario.Dir(), "state", st.State)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// statusToMessage marshals a RunStatus into a Kafka message.
func statusToMessage(st domain.RunStatus) (kafkago.Message, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run status: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "state", Value: []byte(st.State)},
	}
	if !st.FinishedAt.IsZero() {
		headers = append(headers, kafkago.Header{Key: "finished_at", Value: []byte(st.FinishedAt.Format(time.RFC3339))})
	}
	return kafkago.Message{
		Key:     []byte(st.Scenario.Dir()),
		Value:   data,
		Headers: headers,
	}, nil
}
