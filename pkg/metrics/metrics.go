package metrics

import (
	"time"
)

// Apply outcomes reported through RecordApply.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MetricsCollector defines the interface for collecting ledger metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory, etc.).
type MetricsCollector interface {
	// Ledger core
	RecordApply(outcome string, duration time.Duration)
	RecordAccountOpened(implicit bool)
	RecordStoreOp(store, op string, success bool, duration time.Duration)

	// Event sinks
	RecordCircuitState(sink string, state CircuitState)
	RecordQueueDepth(sink string, depth int)
	RecordEventDropped(sink string)
	RecordEventPublished(sink string, success bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the sink has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordApply does nothing.
func (NoOpCollector) RecordApply(outcome string, duration time.Duration) {}

// RecordAccountOpened does nothing.
func (NoOpCollector) RecordAccountOpened(implicit bool) {}

// RecordStoreOp does nothing.
func (NoOpCollector) RecordStoreOp(store, op string, success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(sink string, state CircuitState) {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(sink string, depth int) {}

// RecordEventDropped does nothing.
func (NoOpCollector) RecordEventDropped(sink string) {}

// RecordEventPublished does nothing.
func (NoOpCollector) RecordEventPublished(sink string, success bool, duration time.Duration) {}

// RecordHTTPRequest does nothing.
func (NoOpCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {}

// HTTPRecorder is implemented by collectors that also track served requests.
type HTTPRecorder interface {
	RecordHTTPRequest(method, endpoint string, status int, duration time.Duration)
}
