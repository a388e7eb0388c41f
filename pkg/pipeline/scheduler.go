// Package pipeline paces frame capture, dispatches at most one detection at
// a time and turns results into guidance and overlay frames.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
)

// Scheduler owns the pipeline state machine.
//
// A detection is dispatched on a tick only when none is in flight; frames
// arriving meanwhile are dropped. Stop bumps the generation and cancels the
// in-flight call, so a result landing after Stop is discarded. Results and
// overlay frames are delivered under deliverMu, which Stop also takes: once
// Stop returns no sink sees anything from the stopped stream. Sinks must not
// call Stop.
type Scheduler struct {
	config   Config
	detector detection.Detector
	source   capture.Source
	logger   *slog.Logger
	timeout  time.Duration

	opMu      sync.Mutex // serializes LoadModel, Start, Stop and Close
	deliverMu sync.Mutex // held from the generation check through sink calls

	mu       sync.Mutex
	state    State
	gen      uint64
	inFlight bool
	cancel   context.CancelFunc
	held     []detection.Detection
	loadErr  error
	lastErr  error
	last     *Guidance
	stats    Stats
	closed   bool

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a scheduler in the Uninitialized state.
func New(det detection.Detector, src capture.Source, opts ...Option) *Scheduler {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.HoldCycles < 0 {
		cfg.HoldCycles = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config:   cfg,
		detector: det,
		source:   src,
		logger:   logger.With("component", "pipeline.scheduler"),
		timeout:  cfg.EffectiveDetectTimeout(),
		wake:     make(chan struct{}, 1),
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DetectTimeout returns the timeout applied to each detection call.
func (s *Scheduler) DetectTimeout() time.Duration {
	return s.timeout
}

// LoadModel loads the detector. It is allowed from Uninitialized and, as a
// retry, from ModelFailed. On failure the state becomes ModelFailed and a
// *ModelLoadError is returned.
func (s *Scheduler) LoadModel(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != Uninitialized && s.state != ModelFailed {
		from := s.state
		s.mu.Unlock()
		return transitionError("load model", from)
	}
	s.state = LoadingModel
	s.mu.Unlock()

	s.logger.Info("loading model", "detector", detection.NameOf(s.detector))
	start := time.Now()
	err := s.detector.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		lerr := &ModelLoadError{Err: err}
		s.state = ModelFailed
		s.loadErr = lerr
		s.lastErr = lerr
		s.logger.Error("model load failed", "error", err)
		return lerr
	}
	s.state = ModelReady
	s.loadErr = nil
	s.lastErr = nil
	s.logger.Info("model ready", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Start opens the capture source and begins streaming. It is allowed from
// ModelReady and Idle; calling it while streaming is a no-op. If the source
// fails to open the state becomes Idle and a *CaptureSourceError is returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.state == Streaming:
		s.mu.Unlock()
		return nil
	case s.state == ModelFailed:
		err := fmt.Errorf("%w: %w", ErrNotReady, s.loadErr)
		s.mu.Unlock()
		return err
	case !s.state.Ready():
		err := fmt.Errorf("%w: state is %s", ErrNotReady, s.state)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.source.Open(ctx); err != nil {
		cerr := &CaptureSourceError{Op: "open", Err: err}
		s.mu.Lock()
		s.state = Idle
		s.lastErr = cerr
		s.mu.Unlock()
		s.logger.Warn("capture source failed to open", "error", err)
		return cerr
	}

	s.mu.Lock()
	s.state = Streaming
	s.held = nil
	s.stats.ConsecutiveFailures = 0
	s.lastErr = nil
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Info("streaming started")
	return nil
}

// Stop ends streaming. A detection in flight is cancelled and its result,
// if any, is discarded. Calling Stop when not streaming is a no-op.
func (s *Scheduler) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.halt(func() bool { return true }) {
		return nil
	}
	s.logger.Info("streaming stopped")
	return s.source.Close()
}

// halt moves a streaming scheduler to Idle if current allows it, waiting
// for any delivery in progress. s.mu is held while current runs. s.opMu
// must be held.
func (s *Scheduler) halt(current func() bool) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming || !current() {
		return false
	}
	s.stopLocked()
	return true
}

// stopLocked moves to Idle, invalidating the current generation.
func (s *Scheduler) stopLocked() {
	s.state = Idle
	s.gen++
	s.held = nil
	if s.cancel != nil {
		s.cancel()
	}
}

// Close stops streaming, waits for the detection goroutine to finish and
// closes the detector.
func (s *Scheduler) Close() error {
	stopErr := s.Stop()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return errors.Join(stopErr, s.detector.Close())
}

// Wait blocks until no detection goroutine is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tick runs one capture cycle. It does nothing unless streaming. A capture
// read failure moves the scheduler to Idle and is returned as a
// *CaptureSourceError; detection failures are only reported through guidance.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.stats.Ticks++
	s.mu.Unlock()

	frame, err := s.source.Read(ctx)
	if err == nil && (frame == nil || frame.Image == nil) {
		err = capture.ErrNoFrame
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.readFailed(gen, err)
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.gen != gen || s.state != Streaming {
		s.mu.Unlock()
		return nil
	}
	if s.inFlight {
		s.stats.Skipped++
	} else {
		s.dispatchLocked(gen, frame)
	}
	held := s.held
	s.mu.Unlock()

	s.publishFrame(frame, held)
	return nil
}

func (s *Scheduler) readFailed(gen uint64, err error) error {
	cerr := &CaptureSourceError{Op: "read", Err: err}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	stopped := s.halt(func() bool {
		if s.gen != gen {
			return false
		}
		s.lastErr = cerr
		return true
	})
	if !stopped {
		return nil
	}

	s.logger.Warn("capture read failed, going idle", "error", err)
	s.source.Close()
	return cerr
}

// dispatchLocked starts a detection on frame. s.mu must be held.
func (s *Scheduler) dispatchLocked(gen uint64, frame *capture.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.inFlight = true
	s.cancel = cancel
	s.stats.Dispatched++

	s.wg.Add(1)
	go s.detect(ctx, cancel, gen, frame)
}

type result struct {
	dets []detection.Detection
	err  error
}

func (s *Scheduler) detect(ctx context.Context, cancel context.CancelFunc, gen uint64, frame *capture.Frame) {
	defer s.wg.Done()
	defer cancel()

	start := time.Now()
	ch := make(chan result, 1)
	go func() {
		dets, err := s.detector.Detect(ctx, frame.Image)
		ch <- result{dets, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}

	timedOut := r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
	if timedOut {
		r = result{err: detection.WrapError(detection.NameOf(s.detector), detection.ErrDetectTimeout)}
	}

	s.complete(gen, frame, r, timedOut, time.Since(start))
}

// complete frees the in-flight slot and applies r unless it is stale.
func (s *Scheduler) complete(gen uint64, frame *capture.Frame, r result, timedOut bool, latency time.Duration) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.inFlight = false
	s.cancel = nil

	if gen != s.gen || s.state != Streaming {
		s.stats.Stale++
		s.mu.Unlock()
		s.logger.Debug("discarding stale detection result", "seq", frame.Seq)
		return
	}

	g := Guidance{
		Seq:         frame.Seq,
		FrameWidth:  frame.Width(),
		FrameHeight: frame.Height(),
		LatencyMs:   latency.Milliseconds(),
		At:          time.Now(),
	}

	if r.err != nil {
		s.stats.Failed++
		if timedOut {
			s.stats.TimedOut++
		}
		s.stats.ConsecutiveFailures++
		if s.stats.ConsecutiveFailures > s.config.HoldCycles {
			s.held = nil
		}
		g.Detections = []detection.Detection{}
		g.Instructions = []navigation.Instruction{}
		g.Err = r.err.Error()
		s.lastErr = r.err
	} else {
		instrs, berr := navigation.Build(r.dets, float64(frame.Width()))
		if berr != nil {
			s.stats.InvalidGeometry += uint64(len(r.dets) - len(instrs))
			g.Err = berr.Error()
		}
		s.stats.Completed++
		s.stats.ConsecutiveFailures = 0
		s.held = r.dets
		s.lastErr = berr
		g.Detections = r.dets
		if g.Detections == nil {
			g.Detections = []detection.Detection{}
		}
		g.Instructions = instrs
		g.Summary = navigation.Summarize(instrs)
	}
	s.last = &g
	sinks := s.config.GuidanceSinks
	s.mu.Unlock()

	if r.err != nil {
		s.logger.Warn("detection failed", "seq", frame.Seq, "error", r.err)
	} else if g.Err != "" {
		s.logger.Warn("detections with invalid geometry skipped", "seq", frame.Seq, "error", g.Err)
	}

	for _, sink := range sinks {
		sink.OnGuidance(g)
	}
}

// publishFrame renders held detections onto a copy of frame and hands it to
// the frame sinks. A render failure publishes the frame without overlay.
func (s *Scheduler) publishFrame(frame *capture.Frame, held []detection.Detection) {
	if len(s.config.FrameSinks) == 0 {
		return
	}

	out := frame.Clone()
	if s.config.Renderer != nil {
		err := s.config.Renderer.Render(out.Image, held, frame.Width(), frame.Height())
		s.mu.Lock()
		if err != nil {
			s.stats.RenderErrors++
		} else {
			s.stats.Rendered++
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("overlay skipped", "seq", frame.Seq, "error", err)
			out = frame.Clone()
		}
	}

	for _, sink := range s.config.FrameSinks {
		sink.OnFrame(out)
	}
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot returns the state, last error, last guidance and counters.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:    s.state,
		InFlight: s.inFlight,
		Stats:    s.stats,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.last != nil {
		g := *s.last
		snap.Guidance = &g
	}
	return snap
}

// Held returns the detections currently drawn on the overlay.
func (s *Scheduler) Held() []detection.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]detection.Detection(nil), s.held...)
}
