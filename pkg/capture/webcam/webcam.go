// Package webcam captures frames from a local camera through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfind/pkg/capture"
)

// Config holds webcam settings. Zero width or height keeps the device default.
type Config struct {
	Device int
	Width  int
	Height int
	FPS    float64
	Logger *slog.Logger
}

// DefaultConfig returns defaults for the first camera at 640x480.
func DefaultConfig() Config {
	return Config{Width: 640, Height: 480, FPS: 30, Logger: slog.Default()}
}

// Validate checks the config and returns any problems found.
func (c Config) Validate() []string {
	var errs []string
	if c.Device < 0 {
		errs = append(errs, "device index cannot be negative")
	}
	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, "width and height cannot be negative")
	}
	if c.FPS < 0 {
		errs = append(errs, "fps cannot be negative")
	}
	return errs
}

// Source reads frames from a webcam.
type Source struct {
	config Config
	logger *slog.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
	seq uint64
}

// New creates a webcam source. The device is not opened until Open.
func New(cfg Config) *Source {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		config: cfg,
		logger: logger.With("component", "capture.webcam", "device", cfg.Device),
	}
}

// Open opens the device.
func (s *Source) Open(ctx context.Context) error {
	if errs := s.config.Validate(); len(errs) > 0 {
		return &capture.SourceError{Op: "open", Err: fmt.Errorf("invalid config: %v", errs)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap != nil {
		return nil
	}

	vc, err := gocv.VideoCaptureDevice(s.config.Device)
	if err != nil {
		return &capture.SourceError{Op: "open", Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return &capture.SourceError{Op: "open", Err: fmt.Errorf("device %d did not open", s.config.Device)}
	}
	if s.config.Width > 0 && s.config.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(s.config.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(s.config.Height))
	}
	if s.config.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, s.config.FPS)
	}

	s.cap = vc
	s.mat = gocv.NewMat()
	s.logger.Info("camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)
	return nil
}

// Read grabs the next frame. The device paces the call.
func (s *Source) Read(ctx context.Context) (*capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return nil, &capture.SourceError{Op: "read", Err: capture.ErrNotOpen}
	}

	if ok := s.cap.Read(&s.mat); !ok {
		return nil, &capture.SourceError{Op: "read", Err: fmt.Errorf("device %d stopped delivering frames", s.config.Device)}
	}
	if s.mat.Empty() {
		return nil, &capture.SourceError{Op: "read", Err: capture.ErrNoFrame}
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, &capture.SourceError{Op: "read", Err: err}
	}

	s.seq++
	f := capture.NewFrame(img, s.seq)
	if rgba, ok := img.(*image.RGBA); ok && f.Image == rgba {
		f = f.Clone()
	}
	f.CapturedAt = time.Now()
	return f, nil
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return nil
	}
	s.mat.Close()
	err := s.cap.Close()
	s.cap = nil
	s.logger.Info("camera closed")
	return err
}
