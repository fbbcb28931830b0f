package memory

import (
	"fmt"
	"sync"
	"time"

	"account-ledger/pkg/metrics"
)

// MemoryCollector implements MetricsCollector for in-memory inspection and tests.
type MemoryCollector struct {
	mu sync.RWMutex

	applies        map[string]int64
	applyLatencies []time.Duration
	opened         int64
	openedImplicit int64
	storeOps       map[string]*StoreMetrics
	sinkMetrics    map[string]*SinkMetrics
	httpRequests   map[string]int64
}

// StoreMetrics holds counters for one store and operation pair.
type StoreMetrics struct {
	Calls     int64
	Errors    int64
	Latencies []time.Duration
}

// SinkMetrics holds metrics for a single event sink.
type SinkMetrics struct {
	Published     int64
	PublishErrors int64
	Dropped       int64
	QueueDepth    int

	CircuitState metrics.CircuitState
	CircuitOpens int64

	PublishLatencies []time.Duration
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		applies:     make(map[string]int64),
		storeOps:     make(map[string]*StoreMetrics),
		sinkMetrics:  make(map[string]*SinkMetrics),
		httpRequests: make(map[string]int64),
	}
}

// sink returns the SinkMetrics for name, creating it if needed. Caller holds mu.
func (mc *MemoryCollector) sink(name string) *SinkMetrics {
	sm, ok := mc.sinkMetrics[name]
	if !ok {
		sm = &SinkMetrics{}
		mc.sinkMetrics[name] = sm
	}
	return sm
}

// RecordApply records one pass through the ledger core.
func (mc *MemoryCollector) RecordApply(outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.applies[outcome]++
	mc.applyLatencies = append(mc.applyLatencies, duration)
}

// RecordAccountOpened records a newly created account.
func (mc *MemoryCollector) RecordAccountOpened(implicit bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.opened++
	if implicit {
		mc.openedImplicit++
	}
}

// RecordStoreOp records a store call.
func (mc *MemoryCollector) RecordStoreOp(store, op string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := store + "." + op
	sm, ok := mc.storeOps[key]
	if !ok {
		sm = &StoreMetrics{}
		mc.storeOps[key] = sm
	}
	sm.Calls++
	if !success {
		sm.Errors++
	}
	sm.Latencies = append(sm.Latencies, duration)
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(sink string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	sm := mc.sink(sink)
	oldState := sm.CircuitState
	sm.CircuitState = state

	// Count transitions to open
	if oldState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		sm.CircuitOpens++
	}
}

// RecordQueueDepth records the current dispatcher queue depth.
func (mc *MemoryCollector) RecordQueueDepth(sink string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).QueueDepth = depth
}

// RecordEventDropped records an event dropped on backpressure.
func (mc *MemoryCollector) RecordEventDropped(sink string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).Dropped++
}

// RecordEventPublished records a publish attempt.
func (mc *MemoryCollector) RecordEventPublished(sink string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	sm := mc.sink(sink)
	sm.Published++
	if !success {
		sm.PublishErrors++
	}
	sm.PublishLatencies = append(sm.PublishLatencies, duration)
}

// RecordHTTPRequest counts a served request under "METHOD endpoint status".
func (mc *MemoryCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.httpRequests[fmt.Sprintf("%s %s %d", method, endpoint, status)]++
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Applies        map[string]int64        `json:"applies"`
	AccountsOpened int64                   `json:"accounts_opened"`
	OpenedImplicit int64                   `json:"accounts_opened_implicit"`
	StoreCalls     map[string]int64        `json:"store_calls"`
	StoreErrors    map[string]int64        `json:"store_errors"`
	Sinks          map[string]SinkSnapshot `json:"sinks"`
	HTTPRequests   map[string]int64        `json:"http_requests"`
}

// SinkSnapshot is the exported view of SinkMetrics.
type SinkSnapshot struct {
	Published     int64  `json:"published"`
	PublishErrors int64  `json:"publish_errors"`
	Dropped       int64  `json:"dropped"`
	QueueDepth    int    `json:"queue_depth"`
	CircuitState  string `json:"circuit_state"`
	CircuitOpens  int64  `json:"circuit_opens"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := Snapshot{
		Applies:        make(map[string]int64, len(mc.applies)),
		AccountsOpened: mc.opened,
		OpenedImplicit: mc.openedImplicit,
		StoreCalls:     make(map[string]int64, len(mc.storeOps)),
		StoreErrors:    make(map[string]int64, len(mc.storeOps)),
		Sinks:          make(map[string]SinkSnapshot, len(mc.sinkMetrics)),
		HTTPRequests:   make(map[string]int64, len(mc.httpRequests)),
	}

	for key, n := range mc.httpRequests {
		snapshot.HTTPRequests[key] = n
	}

	for outcome, n := range mc.applies {
		snapshot.Applies[outcome] = n
	}
	for key, sm := range mc.storeOps {
		snapshot.StoreCalls[key] = sm.Calls
		snapshot.StoreErrors[key] = sm.Errors
	}
	for name, sm := range mc.sinkMetrics {
		snapshot.Sinks[name] = SinkSnapshot{
			Published:     sm.Published,
			PublishErrors: sm.PublishErrors,
			Dropped:       sm.Dropped,
			QueueDepth:    sm.QueueDepth,
			CircuitState:  sm.CircuitState.String(),
			CircuitOpens:  sm.CircuitOpens,
		}
	}

	return snapshot
}

// SnapshotJSON returns the snapshot as a JSON-encodable value.
func (mc *MemoryCollector) SnapshotJSON() interface{} {
	return mc.Snapshot()
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.applies = make(map[string]int64)
	mc.applyLatencies = nil
	mc.opened = 0
	mc.openedImplicit = 0
	mc.storeOps = make(map[string]*StoreMetrics)
	mc.sinkMetrics = make(map[string]*SinkMetrics)
	mc.httpRequests = make(map[string]int64)
}

// GetSinkMetrics returns a copy of the metrics for one sink, or nil.
func (mc *MemoryCollector) GetSinkMetrics(sink string) *SinkMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if sm, exists := mc.sinkMetrics[sink]; exists {
		copy := *sm
		return &copy
	}
	return nil
}

// ApplyLatencies returns a copy of the recorded core latencies.
func (mc *MemoryCollector) ApplyLatencies() []time.Duration {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]time.Duration, len(mc.applyLatencies))
	copy(out, mc.applyLatencies)
	return out
}

var (
	_ metrics.MetricsCollector = (*MemoryCollector)(nil)
	_ metrics.HTTPRecorder     = (*MemoryCollector)(nil)
)
