package tts

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds TTS provider configuration.
type Config struct {
	// APIKey authenticates with the provider.
	APIKey string

	// BaseURL overrides the provider endpoint (for proxies and tests).
	BaseURL string

	// Voice is the provider voice name.
	Voice string

	// Model is the synthesis model.
	Model string

	// Encoding is the requested output format.
	Encoding Encoding

	// Speed is the speaking rate, 0.25 to 4.0.
	Speed float64

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is how many times a retryable failure is retried.
	MaxRetries int

	// RetryDelay is the base delay between retries, growing linearly.
	RetryDelay time.Duration

	// HTTPClient replaces the default client when set.
	HTTPClient *http.Client

	// Logger receives provider logs. Nil uses slog.Default.
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithEncoding sets the output encoding.
func WithEncoding(e Encoding) Option {
	return func(c *Config) { c.Encoding = e }
}

// WithSpeed sets the speaking rate, 0.25 to 4.0.
func WithSpeed(speed float64) Option {
	return func(c *Config) { c.Speed = speed }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retries for 429 and 5xx responses.
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
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Voice:      VoiceAlloy,
		Model:      ModelTTS1,
		Encoding:   EncodingMP3,
		Speed:      1.1,
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Speed != 0 && (c.Speed < 0.25 || c.Speed > 4) {
		return ErrInvalidSpeed
	}
	return nil
}
