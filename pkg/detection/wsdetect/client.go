// Package wsdetect implements a Detector that streams JPEG frames to a
// detection service over a websocket and reads msgpack replies.
package wsdetect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

const backendName = "ws"

// Config holds the websocket detector configuration.
type Config struct {
	URL              string
	JPEGQuality      int
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	Logger           *slog.Logger
}

// Option is a functional option for configuring the detector.
type Option func(*Config)

// WithURL sets the service URL, e.g. "ws://localhost:5000/ws/detect".
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithTimeouts sets read and write deadlines per frame.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithPingInterval sets the keepalive ping interval. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) { c.PingInterval = d }
}

// WithJPEGQuality sets the upload JPEG quality.
func WithJPEGQuality(q int) Option {
	return func(c *Config) { c.JPEGQuality = q }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:5000/ws/detect",
		JPEGQuality:      detection.DefaultJPEGQuality,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		Logger:           slog.Default(),
	}
}

// Client is a websocket detection backend. Frames are sent one at a time.
type Client struct {
	config Config
	logger *slog.Logger
	dialer *websocket.Dialer

	callMu sync.Mutex // one frame on the wire at a time

	mu     sync.Mutex
	conn   *websocket.Conn
	loaded bool
	done   chan struct{} // closed to stop the current keepalive
}

// New creates a websocket detector.
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		logger: logger.With("component", "detection.wsdetect", "url", cfg.URL),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Name identifies the backend.
func (c *Client) Name() string {
	return backendName
}

// Load dials the service.
func (c *Client) Load(ctx context.Context) error {
	if _, err := c.connect(ctx); err != nil {
		return detection.WrapError(backendName, err)
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Detect sends img as a JPEG frame and waits for the reply. A failed read
// or write drops the connection; the next call redials.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if !loaded {
		return nil, detection.WrapError(backendName, detection.ErrModelNotLoaded)
	}

	frame, err := detection.EncodeJPEG(img, c.config.JPEGQuality)
	if err != nil {
		return nil, detection.WrapError(backendName, err)
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, detection.WrapError(backendName, err)
	}

	// Closing the conn is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetWriteDeadline(c.deadline(ctx, c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.drop(conn)
		return nil, detection.WrapError(backendName, ctxErr(ctx, fmt.Errorf("write frame: %w", err)))
	}

	conn.SetReadDeadline(c.deadline(ctx, c.config.ReadTimeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		c.drop(conn)
		return nil, detection.WrapError(backendName, ctxErr(ctx, fmt.Errorf("read reply: %w", err)))
	}
	if msgType != websocket.BinaryMessage {
		return nil, detection.WrapError(backendName, fmt.Errorf("%w: unexpected message type %d",
			detection.ErrMalformedResponse, msgType))
	}

	reply, err := DecodeReply(data)
	if err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("%w: %v", detection.ErrMalformedResponse, err))
	}
	if !reply.Success {
		return nil, detection.WrapError(backendName, fmt.Errorf("%w: %s", detection.ErrMalformedResponse, reply.Error))
	}

	if reply.Detections == nil {
		reply.Detections = []detection.Detection{}
	}
	return reply.Detections, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = false
	if c.conn == nil {
		return nil
	}
	close(c.done)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.config.WriteTimeout))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	c.logger.Debug("dialing detection service")
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Warn("error sending pong", "error", err)
		}
		return nil
	})

	c.conn = conn
	c.done = make(chan struct{})
	if c.config.PingInterval > 0 {
		go c.keepAlive(conn, c.done)
	}
	return conn, nil
}

// drop forgets conn if it is still the current connection.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		close(c.done)
		c.conn = nil
	}
	conn.Close()
}

func (c *Client) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			if err != nil {
				c.logger.Warn("ping failed, marking connection as dead", "error", err)
				c.drop(conn)
				return
			}
		}
	}
}

func (c *Client) deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if dl, ok := ctx.Deadline(); ok && dl.Before(t) {
		return dl
	}
	return t
}

// ctxErr prefers the context error when the context ended the call.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return err
}
