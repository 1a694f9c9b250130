package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

var (
	ErrNoBrokers = errors.New("events: no kafka brokers configured")
	ErrNoTopic   = errors.New("events: kafka topic is empty")
)

// KafkaConfig holds producer settings.
// Embed this in your app config for env parsing with caarlos0/env.
type KafkaConfig struct {
	Brokers  []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic    string        `env:"KAFKA_OUTCOME_TOPIC" envDefault:"mailroom.outcomes"`
	ClientID string        `env:"KAFKA_CLIENT_ID" envDefault:"mailroom"`
	Backoff  time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	Retries  int           `env:"KAFKA_RETRY_MAX" envDefault:"5"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Kafka publishes events with a synchronous producer, waiting for all
// in-sync replicas to acknowledge.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects a producer to cfg.Brokers.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if !cfg.Enabled() {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	prod, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("events: create sarama sync producer: %w", err)
	}
	return NewKafkaWithProducer(prod, cfg.Topic), nil
}

// ProducerConfig returns the sarama configuration used by NewKafka.
func ProducerConfig(cfg KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Retry.Backoff = cfg.Backoff
	return sc
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

// Publish sends e as a JSON message keyed by e.Key.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	b, err := json.Marshal(e)
	if err != nil {
		metrics.IncEventPublished(false)
		return fmt.Errorf("events: marshal %s: %w", e.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     k.topic,
		Value:     sarama.ByteEncoder(b),
		Timestamp: e.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
		},
	}
	if e.Key != "" {
		msg.Key = sarama.StringEncoder(e.Key)
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		metrics.IncEventPublished(false)
		return fmt.Errorf("events: send kafka message: %w", err)
	}
	metrics.IncEventPublished(true)
	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
