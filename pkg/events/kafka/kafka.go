// Package kafka publishes transaction events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"account-ledger/pkg/events"

	"github.com/segmentio/kafka-go"
)

// Balancer names accepted by PublisherConfig.
const (
	BalancerLeastBytes = "least_bytes"
	BalancerHash       = "hash"
)

// PublisherConfig configures the Kafka sink.
type PublisherConfig struct {
	// Brokers is the bootstrap broker list
	Brokers []string `yaml:"brokers"`

	// Topic receives one message per transaction
	Topic string `yaml:"topic"`

	// Balancer selects partitions: hash (default, keeps an account on one
	// partition) or least_bytes.
	// hash keeps every event of an account on one partition.
	Balancer string `yaml:"balancer"`

	// BatchTimeout bounds how long the writer waits to fill a batch
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// WriteTimeout bounds a single write to the broker
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequiredAcks is -1 (all), 0 (none) or 1 (leader)
	RequiredAcks int `yaml:"required_acks"`
}

// DefaultPublisherConfig returns defaults for a local broker.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "transaction_applied",
		Balancer:     BalancerHash,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		RequiredAcks: 1,
	}
}

// Publisher writes events to Kafka keyed by account id.
type Publisher struct {
	writer *kafka.Writer
	config PublisherConfig

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a Kafka sink. Connections are opened lazily on the
// first write.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if config.Topic == "" {
		return nil, errors.New("kafka: no topic configured")
	}

	var balancer kafka.Balancer
	switch config.Balancer {
	case "", BalancerHash:
		balancer = &kafka.Hash{}
	case BalancerLeastBytes:
		balancer = &kafka.LeastBytes{}
	default:
		return nil, fmt.Errorf("kafka: unknown balancer %q", config.Balancer)
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               balancer,
		BatchTimeout:           config.BatchTimeout,
		WriteTimeout:           config.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}

	return &Publisher{writer: writer, config: config}, nil
}

// Message builds the Kafka message for event.
func Message(event events.TransactionApplied) (kafka.Message, error) {
	data, err := event.Encode()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.AccountID),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("transaction_applied")},
			{Key: "transaction_id", Value: []byte(event.TransactionID)},
		},
	}, nil
}

// Publish writes one message and waits for the configured acks.
func (p *Publisher) Publish(ctx context.Context, event events.TransactionApplied) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return events.ErrPublisherClosed
	}

	msg, err := Message(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Name returns "kafka".
func (p *Publisher) Name() string { return "kafka" }

// Topic returns the configured topic.
func (p *Publisher) Topic() string { return p.config.Topic }

// Close flushes pending batches and closes broker connections.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

var _ events.Publisher = (*Publisher)(nil)
