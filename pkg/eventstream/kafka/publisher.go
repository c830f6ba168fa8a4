// Package kafka publishes vectorize lifecycle events to a Kafka topic using
// segmentio/kafka-go's writer, keyed by job name so every event for a given
// job lands on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/eventstream"
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher publishes events to Kafka.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// New creates a Publisher writing to the configured topic.
func New(cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

// Publish marshals event as JSON and writes it keyed by job name.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.JobName),
		Value: body,
	})
	if err != nil {
		p.logger.Error("publishing event to kafka",
			zap.String("event_type", event.EventType),
			zap.String("job_name", event.JobName),
			zap.Error(err))
		return fmt.Errorf("writing kafka message: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
