// Package detectserver exposes a local detector over HTTP and websocket so
// that thin clients can run the pipeline against a remote model.
package detectserver

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
)

// ErrRateLimited is reported to clients that exceed their request rate.
var ErrRateLimited = errors.New("detectserver: rate limit exceeded")

// Config holds server configuration.
type Config struct {
	// Port is the listen port.
	Port string

	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64

	// RateBurst is the burst allowed above RateLimit.
	RateBurst int

	// BodyLimit caps request bodies in bytes.
	BodyLimit int

	// DetectTimeout bounds each detector call.
	DetectTimeout time.Duration

	// Logger receives server logs.
	Logger *slog.Logger
}

// Option configures the server.
type Option func(*Config)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(c *Config) { c.Port = port }
}

// WithRateLimit limits each client IP to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = rps
		c.RateBurst = burst
	}
}

// WithDetectTimeout bounds each detection.
func WithDetectTimeout(d time.Duration) Option {
	return func(c *Config) { c.DetectTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Port:          "5000",
		BodyLimit:     16 * 1024 * 1024,
		DetectTimeout: 10 * time.Second,
	}
}

// Server serves one detector. Detections run one at a time.
type Server struct {
	app      *fiber.App
	config   Config
	detector detection.Detector
	validate *validator.Validate
	limiter  *limiterSet
	sem      chan struct{}
	logger   *slog.Logger
}

// New creates a server for det, which must already be loaded.
func New(det detection.Detector, opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}

	s := &Server{
		config:   cfg,
		detector: det,
		validate: validator.New(),
		limiter:  newLimiterSet(cfg.RateLimit, cfg.RateBurst),
		sem:      make(chan struct{}, 1),
		logger:   cfg.Logger.With("component", "detectserver"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "detectd",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/detect", s.rateLimit, s.handleDetect)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/detect", websocket.New(s.handleDetectWS))

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("detection service listening",
			"port", s.config.Port,
			"detector", detection.NameOf(s.detector),
		)
		errCh <- s.app.Listen(":" + s.config.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

// Detect runs the detector on img and builds instructions for it.
func (s *Server) Detect(ctx context.Context, img image.Image) ([]detection.Detection, []navigation.Instruction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.DetectTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	dets, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, nil, err
	}

	instrs, err := navigation.Build(dets, float64(img.Bounds().Dx()))
	if err != nil {
		s.logger.Warn("skipping detections with invalid geometry", "error", err)
	}
	return dets, instrs, nil
}
