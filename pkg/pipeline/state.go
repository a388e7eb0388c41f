package pipeline

import "fmt"

// State is the lifecycle state of a Scheduler.
type State int

const (
	Uninitialized State = iota
	LoadingModel
	ModelReady
	ModelFailed
	Streaming
	Idle
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	LoadingModel:  "loading_model",
	ModelReady:    "model_ready",
	ModelFailed:   "model_failed",
	Streaming:     "streaming",
	Idle:          "idle",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ready reports whether streaming may be started from s.
func (s State) Ready() bool {
	return s == ModelReady || s == Idle || s == Streaming
}
