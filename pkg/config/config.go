// Package config loads service configuration from defaults, a .env file,
// an optional YAML file and environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"account-ledger/pkg/events"
	"account-ledger/pkg/events/kafka"
	"account-ledger/pkg/events/nats"
	"account-ledger/pkg/events/redis"
	"account-ledger/pkg/logging"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Event sink names.
const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkNATS  = "nats"
	SinkRedis = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Logging logging.Config `yaml:"logging"`
	Ledger  LedgerConfig   `yaml:"ledger"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Events  EventsConfig   `yaml:"events"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	EnablePprof     bool          `yaml:"enable_pprof"`

	// AllowedOrigins enables CORS for the listed origins ("*" for any)
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LedgerConfig configures the ledger core and its in-memory stores.
type LedgerConfig struct {
	// StrictOpening rejects a debit that would open an account
	StrictOpening bool `yaml:"strict_opening"`

	// MaxAccounts caps the account store (0 = unlimited)
	MaxAccounts int `yaml:"max_accounts"`

	// MaxTransactions caps the transaction log (0 = unlimited)
	MaxTransactions int `yaml:"max_transactions"`
}

// MetricsConfig configures metric collection.
type MetricsConfig struct {
	// Enabled exposes Prometheus metrics on /metrics
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every Prometheus metric name
	Namespace string `yaml:"namespace"`
}

// DispatcherConfig mirrors events.DispatcherConfig for file configuration.
type DispatcherConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	MaxWaitTime    time.Duration `yaml:"max_wait_time"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
}

// EventsConfig selects and configures the event sink.
type EventsConfig struct {
	// Sink is one of none, log, kafka, nats, redis
	Sink string `yaml:"sink"`

	Dispatcher DispatcherConfig       `yaml:"dispatcher"`
	Resilience events.ResilientConfig `yaml:"resilience"`

	Kafka kafka.PublisherConfig `yaml:"kafka"`
	NATS  nats.PublisherConfig  `yaml:"nats"`
	Redis redis.PublisherConfig `yaml:"redis"`
}

// DispatcherSettings converts the file form into events.DispatcherConfig.
func (c EventsConfig) DispatcherSettings() events.DispatcherConfig {
	return events.DispatcherConfig{
		QueueSize:      c.Dispatcher.QueueSize,
		Workers:        c.Dispatcher.Workers,
		MaxWaitTime:    c.Dispatcher.MaxWaitTime,
		PublishTimeout: c.Dispatcher.PublishTimeout,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	dispatcher := events.DefaultDispatcherConfig()

	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  5 * time.Second,
			MaxBodyBytes:    1 << 20,
			AllowedOrigins:  []string{"*"},
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "ledger",
		},
		Events: EventsConfig{
			Sink: SinkLog,
			Dispatcher: DispatcherConfig{
				QueueSize:      dispatcher.QueueSize,
				Workers:        dispatcher.Workers,
				MaxWaitTime:    dispatcher.MaxWaitTime,
				PublishTimeout: dispatcher.PublishTimeout,
				FlushTimeout:   5 * time.Second,
			},
			Resilience: events.DefaultResilientConfig(),
			Kafka:      kafka.DefaultPublisherConfig(),
			NATS:       nats.DefaultPublisherConfig(),
			Redis:      redis.DefaultPublisherConfig(),
		},
	}
}

// Load reads ./.env (if present), then the YAML file at path (or at
// $LEDGER_CONFIG when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	return LoadFiles(".env", path)
}

// LoadFiles is Load with an explicit .env location. An empty envFile skips it.
func LoadFiles(envFile, path string) (Config, error) {
	config := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(data, &config); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&config); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Decode overlays YAML onto config. Unknown keys are rejected.
func Decode(data []byte, config *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto config.
func ApplyEnv(config *Config) error {
	config.Logging = logging.ApplyEnv(config.Logging)

	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if addr := os.Getenv("LEDGER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if origins := os.Getenv("LEDGER_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	if v := os.Getenv("LEDGER_STRICT_OPENING"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: LEDGER_STRICT_OPENING=%q", ErrInvalidConfig, v)
		}
		config.Ledger.StrictOpening = strict
	}

	if v := os.Getenv("LEDGER_METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: LEDGER_METRICS_ENABLED=%q", ErrInvalidConfig, v)
		}
		config.Metrics.Enabled = enabled
	}

	if sink := os.Getenv("LEDGER_EVENTS_SINK"); sink != "" {
		config.Events.Sink = strings.ToLower(sink)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Events.Kafka.Brokers = splitList(brokers)
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		config.Events.Kafka.Topic = topic
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		config.Events.NATS.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Events.Redis.Addr = addr
	}
	if stream := os.Getenv("REDIS_STREAM"); stream != "" {
		config.Events.Redis.Stream = stream
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 ||
		c.Server.ShutdownTimeout < 0 || c.Server.RequestTimeout < 0 || c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server timeouts and limits must not be negative", ErrInvalidConfig)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Ledger.MaxAccounts < 0 || c.Ledger.MaxTransactions < 0 {
		return fmt.Errorf("%w: ledger limits must not be negative", ErrInvalidConfig)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("%w: metrics.namespace is empty", ErrInvalidConfig)
	}

	return c.Events.validate()
}

func (c EventsConfig) validate() error {
	if c.Dispatcher.QueueSize < 0 || c.Dispatcher.Workers < 0 {
		return fmt.Errorf("%w: events.dispatcher sizes must not be negative", ErrInvalidConfig)
	}
	if c.Resilience.Timeout < 0 {
		return fmt.Errorf("%w: events.resilience.timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Sink {
	case SinkNone, SinkLog:
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("%w: kafka sink needs brokers and topic", ErrInvalidConfig)
		}
		switch c.Kafka.Balancer {
		case "", kafka.BalancerLeastBytes, kafka.BalancerHash:
		default:
			return fmt.Errorf("%w: kafka balancer %q", ErrInvalidConfig, c.Kafka.Balancer)
		}
	case SinkNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats sink needs a url", ErrInvalidConfig)
		}
	case SinkRedis:
		if c.Redis.Stream == "" || (c.Redis.Addr == "" && len(c.Redis.ClusterAddrs) == 0) {
			return fmt.Errorf("%w: redis sink needs an address and a stream", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown events.sink %q", ErrInvalidConfig, c.Sink)
	}
	return nil
}
