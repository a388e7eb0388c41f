package guidance

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/hub"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
	"github.com/teslashibe/go-wayfind/pkg/tts"
)

// HubSink broadcasts guidance as JSON, overlay frames as JPEG and narration
// audio as binary frames. Nil hubs are skipped.
type HubSink struct {
	Guidance *hub.Hub
	Frames   *hub.Hub
	Audio    *hub.Hub

	// Quality is the JPEG quality for frames; zero uses the default.
	Quality int

	logger *slog.Logger

	mu    sync.Mutex
	frame *capture.Frame
}

// NewHubSink creates a sink over the given hubs.
func NewHubSink(guidance, frames, audio *hub.Hub) *HubSink {
	return &HubSink{
		Guidance: guidance,
		Frames:   frames,
		Audio:    audio,
		logger:   log.Component("guidance.hub"),
	}
}

// OnGuidance implements pipeline.GuidanceSink.
func (s *HubSink) OnGuidance(g pipeline.Guidance) {
	if s.Guidance == nil {
		return
	}
	if err := s.Guidance.BroadcastJSON(g); err != nil {
		s.logger.Warn("encode guidance", "error", err)
	}
}

// OnFrame implements pipeline.FrameSink. Frames are only encoded when a
// client is listening; the latest frame is kept for LatestJPEG.
func (s *HubSink) OnFrame(f *capture.Frame) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()

	if s.Frames == nil || s.Frames.ClientCount() == 0 {
		return
	}
	data, err := detection.EncodeJPEG(f.Image, s.Quality)
	if err != nil {
		s.logger.Warn("encode frame", "seq", f.Seq, "error", err)
		return
	}
	s.Frames.BroadcastBinary(data)
}

// OnAudio broadcasts synthesized narration.
func (s *HubSink) OnAudio(a *tts.Audio) {
	if s.Audio == nil || a == nil || len(a.Data) == 0 {
		return
	}
	s.Audio.BroadcastBinary(a.Data)
}

// LatestJPEG encodes the most recent overlay frame. It returns
// capture.ErrNoFrame before the first frame.
func (s *HubSink) LatestJPEG() ([]byte, error) {
	s.mu.Lock()
	f := s.frame
	s.mu.Unlock()
	if f == nil || f.Image == nil {
		return nil, capture.ErrNoFrame
	}
	return detection.EncodeJPEG(f.Image, s.Quality)
}
