package pipeline

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfind/pkg/overlay"
)

// Defaults.
const (
	DefaultTickInterval     = time.Second / 30
	DefaultHoldCycles       = 1
	MinDetectTimeout        = time.Second
	detectTimeoutMultiplier = 4
)

// Config holds scheduler configuration.
type Config struct {
	// TickInterval paces Run.
	TickInterval time.Duration

	// DetectTimeout bounds one detection call. Zero derives it from
	// TickInterval: four ticks, at least MinDetectTimeout.
	DetectTimeout time.Duration

	// HoldCycles is how many consecutive failed cycles the last good
	// detections stay on the overlay.
	HoldCycles int

	Renderer      *overlay.Renderer
	GuidanceSinks []GuidanceSink
	FrameSinks    []FrameSink
	Logger        *slog.Logger
}

// Option is a functional option for configuring the scheduler.
type Option func(*Config)

// WithTickInterval sets the loop interval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.TickInterval = d }
}

// WithDetectTimeout sets the per-call detection timeout.
func WithDetectTimeout(d time.Duration) Option {
	return func(c *Config) { c.DetectTimeout = d }
}

// WithHoldCycles sets how long stale detections stay on the overlay.
func WithHoldCycles(n int) Option {
	return func(c *Config) { c.HoldCycles = n }
}

// WithRenderer sets the overlay renderer.
func WithRenderer(r *overlay.Renderer) Option {
	return func(c *Config) { c.Renderer = r }
}

// WithGuidanceSink adds a guidance consumer.
func WithGuidanceSink(s GuidanceSink) Option {
	return func(c *Config) { c.GuidanceSinks = append(c.GuidanceSinks, s) }
}

// WithFrameSink adds an overlay frame consumer.
func WithFrameSink(s FrameSink) Option {
	return func(c *Config) { c.FrameSinks = append(c.FrameSinks, s) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the defaults: 30 ticks per second, one hold cycle.
func DefaultConfig() Config {
	return Config{
		TickInterval: DefaultTickInterval,
		HoldCycles:   DefaultHoldCycles,
		Logger:       slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// EffectiveDetectTimeout returns the timeout used for detection calls.
func (c Config) EffectiveDetectTimeout() time.Duration {
	if c.DetectTimeout > 0 {
		return c.DetectTimeout
	}
	return max(detectTimeoutMultiplier*c.TickInterval, MinDetectTimeout)
}
