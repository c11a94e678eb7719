package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"aquasense/internal/logger"
)

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// KafkaPublisher publishes notifications to a Kafka topic, partitioned by
// system so each system's alerts stay ordered for the dispatcher.
type KafkaPublisher struct {
	writer *kafka.Writer
	closed atomic.Bool
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // partition by key
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
		Async:        false,
	}
	return &KafkaPublisher{writer: writer}, nil
}

func (p *KafkaPublisher) message(n *Notification) (kafka.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(n.Alert.SystemID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(n.Alert.ID)},
			{Key: "severity", Value: []byte(n.Alert.Type)},
			{Key: "parameter", Value: []byte(n.Alert.Parameter)},
		},
		Time: n.QueuedAt,
	}, nil
}

// Publish sends one notification, retrying transient failures with
// exponential backoff bounded by the context.
func (p *KafkaPublisher) Publish(ctx context.Context, n *Notification) error {
	return p.PublishBatch(ctx, []*Notification{n})
}

// PublishBatch sends a batch in one write.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, batch []*Notification) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(batch) == 0 {
		return nil
	}

	log := logger.WithComponent("notify_kafka")
	messages := make([]kafka.Message, 0, len(batch))
	for _, n := range batch {
		msg, err := p.message(n)
		if err != nil {
			log.Error().Err(err).Str("alert_id", n.Alert.ID).Msg("dropping unserializable notification")
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxElapsedTime(8*time.Second),
	), ctx)

	return backoff.Retry(func() error {
		if err := p.writer.WriteMessages(ctx, messages...); err != nil {
			log.Warn().Err(err).Int("batch_size", len(messages)).Msg("kafka write failed, retrying")
			return err
		}
		return nil
	}, policy)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
