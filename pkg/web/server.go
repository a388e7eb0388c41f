// Package web serves the pipeline control API and live websocket feeds.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/hub"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
)

// Controller is the pipeline surface the server drives.
type Controller interface {
	LoadModel(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
	Snapshot() pipeline.Snapshot
}

// FrameSource returns the latest overlay frame as JPEG.
type FrameSource interface {
	LatestJPEG() ([]byte, error)
}

// Hubs are the websocket feeds. Nil hubs are not routed.
type Hubs struct {
	// Status carries scheduler state snapshots.
	Status *hub.Hub

	// Guidance carries guidance results as JSON.
	Guidance *hub.Hub

	// Frames carries annotated JPEG frames.
	Frames *hub.Hub

	// Audio carries narration audio.
	Audio *hub.Hub
}

// Config holds server configuration.
type Config struct {
	// Port is the listen port.
	Port string

	// StaticDir holds dashboard assets. Empty disables static serving.
	StaticDir string

	// StatusInterval is how often status is pushed to the status hub.
	StatusInterval time.Duration

	// Logger receives server logs.
	Logger *slog.Logger
}

// Option configures the server.
type Option func(*Config)

// WithStaticDir serves dashboard assets from dir.
func WithStaticDir(dir string) Option {
	return func(c *Config) { c.StaticDir = dir }
}

// WithStatusInterval sets how often status is pushed to /ws/status.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Config) { c.StatusInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Server is the control server.
type Server struct {
	app    *fiber.App
	config Config
	ctrl   Controller
	frames FrameSource
	hubs   Hubs
	logger *slog.Logger
}

// NewServer creates a server for ctrl listening on port.
func NewServer(port string, ctrl Controller, frames FrameSource, hubs Hubs, opts ...Option) *Server {
	cfg := Config{
		Port:           port,
		StatusInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}

	s := &Server{
		config: cfg,
		ctrl:   ctrl,
		frames: frames,
		hubs:   hubs,
		logger: cfg.Logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "wayfind",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(s.logRequests)
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Post("/model/load", s.handleLoadModel)
	api.Post("/stream/start", s.handleStart)
	api.Post("/stream/stop", s.handleStop)
	api.Get("/guidance", s.handleGuidance)
	api.Get("/frame.jpg", s.handleFrame)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	for path, h := range map[string]*hub.Hub{
		"/ws/status":   hubs.Status,
		"/ws/guidance": hubs.Guidance,
		"/ws/frames":   hubs.Frames,
		"/ws/audio":    hubs.Audio,
	} {
		if h != nil {
			app.Get(path, websocket.New(h.Serve))
		}
	}

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and the status feed, then listens until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for _, h := range []*hub.Hub{s.hubs.Status, s.hubs.Guidance, s.hubs.Frames, s.hubs.Audio} {
		if h != nil {
			go h.Run(ctx)
		}
	}
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", "url", "http://localhost:"+s.config.Port)
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

func (s *Server) pushStatus(ctx context.Context) {
	if s.hubs.Status == nil || s.config.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hubs.Status.ClientCount() > 0 {
				s.BroadcastStatus()
			}
		}
	}
}

// BroadcastStatus pushes the current snapshot to /ws/status clients.
func (s *Server) BroadcastStatus() {
	if s.hubs.Status == nil {
		return
	}
	if err := s.hubs.Status.BroadcastJSON(s.ctrl.Snapshot()); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

// StatusGreeting returns a hub greeting that sends the snapshot of ctrl.
func StatusGreeting(ctrl Controller) func() (hub.Message, bool) {
	return func() (hub.Message, bool) {
		msg, err := hub.EncodeJSON(ctrl.Snapshot())
		return msg, err == nil
	}
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", c.Locals("requestid"),
	)
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
