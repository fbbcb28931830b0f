package events

import (
	"testing"
)

func TestDispatcherStats_InFlight(t *testing.T) {
	tests := []struct {
		name  string
		stats DispatcherStats
		want  int64
	}{
		{"idle", DispatcherStats{}, 0},
		{"pending", DispatcherStats{Dispatched: 10, Published: 6, Failed: 1}, 3},
		{"drained", DispatcherStats{Dispatched: 10, Published: 9, Failed: 1}, 0},
		{"dropped events are not in flight", DispatcherStats{Dispatched: 4, Published: 4, Dropped: 7}, 0},
		{"never negative", DispatcherStats{Dispatched: 1, Published: 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.InFlight(); got != tt.want {
				t.Errorf("InFlight() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrQueueFull", ErrQueueFull, "events: queue full, event dropped"},
		{"ErrDispatcherClosed", ErrDispatcherClosed, "events: dispatcher is closed"},
		{"ErrFlushTimeout", ErrFlushTimeout, "events: flush timeout exceeded"},
		{"ErrCircuitOpen", ErrCircuitOpen, "events: circuit breaker open"},
		{"ErrTimeout", ErrTimeout, "events: publish timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}
