package resultlog

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ruslano69/geoimport/pkg/settings"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes results to a Kafka topic, keyed by run name.
type KafkaPublisher struct {
	writer messageWriter
	name   string
}

// NewKafkaPublisher creates a publisher for cfg.Kafka.
func NewKafkaPublisher(cfg settings.ResultLogConfig) (*KafkaPublisher, error) {
	if cfg.Kafka == nil || cfg.Kafka.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{}, // один ключ → одна партиция, порядок результатов сохраняется
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
		},
		name: cfg.Name,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, result RunResult) error {
	payload, err := result.marshal()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(p.name),
		Value: payload,
		Time:  result.FinishedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "status", Value: []byte(result.Status)},
		},
	}
	if result.RunID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "run_id", Value: []byte(result.RunID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
