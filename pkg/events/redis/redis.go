// Package redis appends transaction events to a Redis stream.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"account-ledger/pkg/events"

	"github.com/redis/rueidis"
)

// PublisherConfig configures the Redis streams sink.
type PublisherConfig struct {
	// Addr is the Redis server address for single node mode
	Addr string `yaml:"addr"`

	// ClusterAddrs enables cluster mode when set
	ClusterAddrs []string `yaml:"cluster_addrs"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Stream is the stream key events are appended to
	Stream string `yaml:"stream"`

	// MaxLen caps the stream length with approximate trimming (0 = unbounded)
	MaxLen int64 `yaml:"max_len"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultPublisherConfig returns defaults for a local server.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Addr:         "localhost:6379",
		Stream:       "ledger:transactions",
		MaxLen:       100000,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Publisher issues one XADD per event.
type Publisher struct {
	client rueidis.Client
	config PublisherConfig
}

// NewPublisher connects to Redis and verifies the connection with PING.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if config.Stream == "" {
		return nil, errors.New("redis: no stream configured")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	if len(config.ClusterAddrs) > 0 {
		initAddress = config.ClusterAddrs
	} else if config.Addr != "" {
		initAddress = []string{config.Addr}
	} else {
		return nil, errors.New("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Publisher{client: client, config: config}, nil
}

// Publish appends event to the stream, trimming it to roughly MaxLen.
func (p *Publisher) Publish(ctx context.Context, event events.TransactionApplied) error {
	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}

	key := p.client.B().Xadd().Key(p.config.Stream)

	var cmd rueidis.Completed
	if p.config.MaxLen > 0 {
		cmd = key.Maxlen().Almost().Threshold(strconv.FormatInt(p.config.MaxLen, 10)).
			Id("*").FieldValue().
			FieldValue("transaction_id", event.TransactionID).
			FieldValue("account_id", event.AccountID).
			FieldValue("payload", string(data)).
			Build()
	} else {
		cmd = key.Id("*").FieldValue().
			FieldValue("transaction_id", event.TransactionID).
			FieldValue("account_id", event.AccountID).
			FieldValue("payload", string(data)).
			Build()
	}

	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Do(ctx, p.client.B().Ping().Build()).Error()
}

// Stream returns the stream key.
func (p *Publisher) Stream() string { return p.config.Stream }

// Name returns "redis".
func (p *Publisher) Name() string { return "redis" }

// Close closes the client.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
