package pipeline

// Stats counts scheduler activity since creation.
type Stats struct {
	Ticks               uint64 `json:"ticks"`
	Dispatched          uint64 `json:"dispatched"`
	Skipped             uint64 `json:"skipped"` // frames not sent because a call was in flight
	Completed           uint64 `json:"completed"`
	Failed              uint64 `json:"failed"`
	TimedOut            uint64 `json:"timed_out"`
	Stale               uint64 `json:"stale"` // results discarded after a stop
	Rendered            uint64 `json:"rendered"`
	RenderErrors        uint64 `json:"render_errors"`
	InvalidGeometry     uint64 `json:"invalid_geometry"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// Snapshot is a consistent view of the scheduler.
type Snapshot struct {
	State     State     `json:"state"`
	InFlight  bool      `json:"in_flight"`
	LastError string    `json:"last_error,omitempty"`
	Guidance  *Guidance `json:"guidance,omitempty"`
	Stats     Stats     `json:"stats"`
}
