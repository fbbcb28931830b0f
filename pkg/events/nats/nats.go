// Package nats publishes transaction events on NATS subjects.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account-ledger/pkg/events"

	"github.com/nats-io/nats.go"
)

// PublisherConfig configures the NATS sink.
type PublisherConfig struct {
	// URL of the NATS server(s), comma separated
	URL string `yaml:"url"`

	// SubjectPrefix is joined with the account id: <prefix>.<account_id>
	SubjectPrefix string `yaml:"subject_prefix"`

	// ConnectTimeout bounds the initial dial
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// FlushOnPublish waits for the server to acknowledge each publish
	FlushOnPublish bool `yaml:"flush_on_publish"`
}

// DefaultPublisherConfig returns defaults for a local server.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:            nats.DefaultURL,
		SubjectPrefix:  "ledger.transactions",
		ConnectTimeout: 2 * time.Second,
		FlushOnPublish: true,
	}
}

// Publisher publishes one message per event.
type Publisher struct {
	nc     *nats.Conn
	config PublisherConfig
}

// NewPublisher connects to NATS.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if config.URL == "" {
		return nil, errors.New("nats: no url configured")
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "ledger.transactions"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 2 * time.Second
	}

	nc, err := nats.Connect(config.URL,
		nats.Name("account-ledger"),
		nats.Timeout(config.ConnectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", config.URL, err)
	}

	return NewPublisherWithConn(nc, config), nil
}

// NewPublisherWithConn wraps an existing connection. Close will close it.
func NewPublisherWithConn(nc *nats.Conn, config PublisherConfig) *Publisher {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "ledger.transactions"
	}
	return &Publisher{nc: nc, config: config}
}

// Subject returns the subject an account's events are published on.
func (p *Publisher) Subject(accountID string) string {
	return p.config.SubjectPrefix + "." + accountID
}

// Publish sends event to <prefix>.<account_id>. The transaction id travels
// in the Nats-Msg-Id header so JetStream streams can deduplicate.
func (p *Publisher) Publish(ctx context.Context, event events.TransactionApplied) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.nc.IsClosed() {
		return events.ErrPublisherClosed
	}

	data, err := event.Encode()
	if err != nil {
		return fmt.Errorf("nats: encode event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(event.AccountID))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.TransactionID)

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if p.config.FlushOnPublish {
		if err := p.nc.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
	}
	return nil
}

// Name returns "nats".
func (p *Publisher) Name() string { return "nats" }

// Close drains buffered messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
