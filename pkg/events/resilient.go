package events

import (
	"context"
	"errors"
	"time"

	"account-ledger/pkg/logging"
	"account-ledger/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientConfig configures circuit breaking and timeouts for a sink.
type ResilientConfig struct {
	// Timeout for a single publish (0 = caller's deadline only)
	Timeout time.Duration `yaml:"timeout"`

	// CircuitBreaker configures the circuit breaker behavior
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests allowed through while half-open. Default: 1
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state after which counts
	// are cleared. 0 never clears.
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration `yaml:"timeout"`

	// ConsecutiveFailures trips the breaker when reached. Default: 5
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`

	// ReadyToTrip overrides ConsecutiveFailures when set.
	ReadyToTrip func(counts Counts) bool `yaml:"-"`
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultResilientConfig returns the default sink protection settings.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 2 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c ResilientConfig) WithTimeout(timeout time.Duration) ResilientConfig {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy of the config with the specified open-state duration.
func (c ResilientConfig) WithCircuitBreakerTimeout(timeout time.Duration) ResilientConfig {
	c.CircuitBreaker.Timeout = timeout
	return c
}

// ResilientPublisher wraps a Publisher with a circuit breaker and a timeout.
type ResilientPublisher struct {
	publisher Publisher
	cb        *gobreaker.CircuitBreaker
	timeout   time.Duration
	metrics   metrics.MetricsCollector
	logger    *logging.Logger
}

// NewResilientPublisher wraps publisher. A nil collector disables metrics.
func NewResilientPublisher(publisher Publisher, config ResilientConfig, collector metrics.MetricsCollector) *ResilientPublisher {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(publisher.Name())

	rp := &ResilientPublisher{
		publisher: publisher,
		timeout:   config.Timeout,
		metrics:   collector,
		logger:    logger,
	}

	threshold := config.CircuitBreaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        publisher.Name(),
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreaker.ReadyToTrip != nil {
				return config.CircuitBreaker.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("sink", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			rp.metrics.RecordCircuitState(name, circuitState(to))
		},
	}
	rp.cb = gobreaker.NewCircuitBreaker(settings)

	logger.Info("resilient publisher initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreaker.MaxRequests),
		zap.Duration("circuit_timeout", config.CircuitBreaker.Timeout),
	)

	return rp
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	default:
		return metrics.CircuitClosed
	}
}

// Publish delivers event through the circuit breaker.
func (rp *ResilientPublisher) Publish(ctx context.Context, event TransactionApplied) error {
	start := time.Now()

	if rp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.timeout)
		defer cancel()
	}

	_, err := rp.cb.Execute(func() (interface{}, error) {
		return nil, rp.publisher.Publish(ctx, event)
	})
	if err == nil {
		return nil
	}

	duration := time.Since(start)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rp.logger.Warn("circuit breaker open - publish rejected",
			zap.String("transaction_id", event.TransactionID),
		)
		return ErrCircuitOpen
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rp.logger.Warn("publish timeout",
			zap.String("transaction_id", event.TransactionID),
			zap.Duration("timeout", rp.timeout),
			zap.Duration("elapsed", duration),
		)
		return ErrTimeout
	}
	return err
}

// State returns the breaker state.
func (rp *ResilientPublisher) State() metrics.CircuitState {
	return circuitState(rp.cb.State())
}

// Name returns the wrapped sink's name.
func (rp *ResilientPublisher) Name() string {
	return rp.publisher.Name()
}

// Close closes the wrapped sink.
func (rp *ResilientPublisher) Close() error {
	return rp.publisher.Close()
}

var _ Publisher = (*ResilientPublisher)(nil)
