package remote

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-wayfind/internal/httpc"
	"github.com/teslashibe/go-wayfind/pkg/detection"
)

// Config holds the HTTP detector configuration.
type Config struct {
	BaseURL     string
	Language    string
	JPEGQuality int

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for configuring the detector.
type Option func(*Config)

// WithBaseURL sets the service base URL, e.g. "http://localhost:5000".
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithLanguage sets the language sent with every request.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithJPEGQuality sets the upload JPEG quality.
func WithJPEGQuality(q int) Option {
	return func(c *Config) { c.JPEGQuality = q }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets the retry count and linear backoff step.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults for a local detection service.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:5000",
		Language:    "en",
		JPEGQuality: detection.DefaultJPEGQuality,
		Timeout:     httpc.DefaultTimeout,
		MaxRetries:  2,
		RetryDelay:  100 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
