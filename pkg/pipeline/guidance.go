package pipeline

import (
	"time"

	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
)

// Guidance is the outcome of one completed detection cycle.
type Guidance struct {
	Seq          uint64                   `json:"seq"`
	FrameWidth   int                      `json:"frame_width"`
	FrameHeight  int                      `json:"frame_height"`
	Detections   []detection.Detection    `json:"detections"`
	Instructions []navigation.Instruction `json:"instructions"`
	Summary      navigation.Summary       `json:"summary"`
	Err          string                   `json:"error,omitempty"`
	LatencyMs    int64                    `json:"latency_ms"`
	At           time.Time                `json:"at"`
}

// OK reports whether the cycle produced detections without error.
func (g Guidance) OK() bool {
	return g.Err == ""
}

// GuidanceSink consumes guidance. OnGuidance is called from the detection
// goroutine and should not block for long.
type GuidanceSink interface {
	OnGuidance(g Guidance)
}

// FrameSink consumes overlay frames. The frame is owned by the sink.
type FrameSink interface {
	OnFrame(f *capture.Frame)
}

// GuidanceFunc adapts a function to GuidanceSink.
type GuidanceFunc func(Guidance)

// OnGuidance calls f(g).
func (f GuidanceFunc) OnGuidance(g Guidance) { f(g) }

// FrameFunc adapts a function to FrameSink.
type FrameFunc func(*capture.Frame)

// OnFrame calls f(fr).
func (f FrameFunc) OnFrame(fr *capture.Frame) { f(fr) }
