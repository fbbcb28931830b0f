package events

// DispatcherStats provides statistics about dispatcher operations.
type DispatcherStats struct {
	// QueueDepth is the number of events waiting for a worker
	QueueDepth int `json:"queue_depth"`

	// Dispatched is the number of events accepted onto the queue
	Dispatched int64 `json:"dispatched"`

	// Published is the number of events the sink acknowledged
	Published int64 `json:"published"`

	// Failed is the number of events the sink rejected
	Failed int64 `json:"failed"`

	// Dropped is the number of events discarded due to backpressure
	Dropped int64 `json:"dropped"`
}

// InFlight returns accepted events not yet acknowledged or failed.
func (s DispatcherStats) InFlight() int64 {
	n := s.Dispatched - s.Published - s.Failed
	if n < 0 {
		return 0
	}
	return n
}
