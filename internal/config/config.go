// Package config loads wayfind configuration from a .env file, an optional
// YAML file and environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultPort           = "8080"
	DefaultDetectPort     = "5000"
	DefaultDetectorURL    = "http://localhost:5000"
	DefaultModelPath      = "models/yolov8n.onnx"
	DefaultTickInterval   = time.Second / 30
	DefaultMQTTTopic      = "wayfind/guidance"
	DefaultRedisChannel   = "wayfind:guidance"
	DefaultRedisKey       = "wayfind:guidance:latest"
	DefaultNarrationVoice = "alloy"
)

// Detector backends.
const (
	BackendHTTP  = "http"
	BackendWS    = "ws"
	BackendYOLO  = "yolo"
	BackendChain = "chain"
)

// Config is the complete wayfind configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
	Narration NarrationConfig `yaml:"narration"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listeners.
type ServerConfig struct {
	Port       string  `yaml:"port"`        // control dashboard
	DetectPort string  `yaml:"detect_port"` // detectd
	RateLimit  float64 `yaml:"rate_limit"`  // detectd requests per second per IP
	RateBurst  int     `yaml:"rate_burst"`

	StaticDir      string        `yaml:"static_dir"`      // dashboard assets; empty serves only the API
	StatusInterval time.Duration `yaml:"status_interval"` // /ws/status push period; zero disables
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	Device int    `yaml:"device"` // webcam index
	Images string `yaml:"images"` // directory of still images, used instead of the webcam when set
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// DetectorConfig selects and configures the detection backend.
type DetectorConfig struct {
	Backend   string   `yaml:"backend"` // http, ws, yolo, chain
	URL       string   `yaml:"url"`
	WSURL     string   `yaml:"ws_url"`
	ModelPath string   `yaml:"model_path"`
	Chain     []string `yaml:"chain"` // backend order for "chain"
	MinScore  float64  `yaml:"min_score"`
	Labels    []string `yaml:"labels"` // allow-list; empty means all
	Language  string   `yaml:"language"`
}

// PipelineConfig tunes the scheduler.
type PipelineConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	DetectTimeout time.Duration `yaml:"detect_timeout"` // 0 means derived from TickInterval
	HoldCycles    int           `yaml:"hold_cycles"`
	AutoStart     bool          `yaml:"auto_start"`
}

// OverlayConfig styles the overlay drawn on published frames. Colors are
// hex strings such as "#00ff00".
type OverlayConfig struct {
	BoxColor   string  `yaml:"box_color" validate:"omitempty,hexcolor"`
	GuideColor string  `yaml:"guide_color" validate:"omitempty,hexcolor"`
	FontSize   float64 `yaml:"font_size" validate:"gte=0"`
	Guides     bool    `yaml:"guides"`
}

// MQTTConfig configures the MQTT guidance sink. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
	ClientID string `yaml:"client_id"`
}

// RedisConfig configures the Redis guidance sink. Empty Address disables it.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// NarrationConfig configures spoken guidance.
type NarrationConfig struct {
	Enabled   bool          `yaml:"enabled"`
	OpenAIKey string        `yaml:"-"`
	Voice     string        `yaml:"voice"`
	Interval  time.Duration `yaml:"interval"` // minimum gap between repeats per zone
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:       DefaultPort,
			DetectPort: DefaultDetectPort,
			RateLimit:  10,
			RateBurst:  20,

			StatusInterval: time.Second,
		},
		Camera: CameraConfig{Width: 640, Height: 480},
		Detector: DetectorConfig{
			Backend:   BackendHTTP,
			URL:       DefaultDetectorURL,
			ModelPath: DefaultModelPath,
			MinScore:  0.5,
			Language:  "en",
		},
		Pipeline: PipelineConfig{
			TickInterval: DefaultTickInterval,
			HoldCycles:   1,
		},
		Overlay: OverlayConfig{
			BoxColor:   "#00ff00",
			GuideColor: "#ffff00",
			FontSize:   14,
			Guides:     true,
		},
		MQTT:  MQTTConfig{Topic: DefaultMQTTTopic, QoS: 1},
		Redis: RedisConfig{Channel: DefaultRedisChannel, Key: DefaultRedisKey, TTL: 10 * time.Second},
		Narration: NarrationConfig{
			Voice:    DefaultNarrationVoice,
			Interval: 3 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. A missing .env is fine. When path is empty,
// WAYFIND_CONFIG is consulted; when that is empty too, no YAML is read.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("WAYFIND_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Port = envOr("WAYFIND_PORT", c.Server.Port)
	c.Server.DetectPort = envOr("DETECTD_PORT", c.Server.DetectPort)
	c.Server.StaticDir = envOr("WAYFIND_STATIC_DIR", c.Server.StaticDir)
	c.Detector.Backend = envOr("DETECTOR_BACKEND", c.Detector.Backend)
	c.Detector.URL = envOr("DETECTOR_URL", c.Detector.URL)
	c.Detector.WSURL = envOr("DETECTOR_WS_URL", c.Detector.WSURL)
	c.Detector.ModelPath = envOr("MODEL_PATH", c.Detector.ModelPath)
	c.Camera.Device = envIntOr("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Images = envOr("CAMERA_IMAGES", c.Camera.Images)
	c.MQTT.Broker = envOr("MQTT_BROKER", c.MQTT.Broker)
	c.Redis.Address = envOr("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = envOr("REDIS_PASSWORD", c.Redis.Password)
	c.Narration.OpenAIKey = envOr("OPENAI_API_KEY", c.Narration.OpenAIKey)
	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
}

// Validate checks the configuration and returns the problems found.
func (c *Config) Validate() []string {
	var errs []string

	switch c.Detector.Backend {
	case BackendHTTP:
		if c.Detector.URL == "" {
			errs = append(errs, "detector.url is required for the http backend")
		}
	case BackendWS:
		if c.Detector.WSURL == "" {
			errs = append(errs, "detector.ws_url is required for the ws backend")
		}
	case BackendYOLO:
		if c.Detector.ModelPath == "" {
			errs = append(errs, "detector.model_path is required for the yolo backend")
		}
	case BackendChain:
		if len(c.Detector.Chain) == 0 {
			errs = append(errs, "detector.chain must list at least one backend")
		}
		for _, b := range c.Detector.Chain {
			if b == BackendChain {
				errs = append(errs, "detector.chain cannot contain itself")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("detector.backend %q is not one of http, ws, yolo, chain", c.Detector.Backend))
	}

	if c.Detector.MinScore < 0 || c.Detector.MinScore > 1 {
		errs = append(errs, "detector.min_score must be between 0 and 1")
	}
	if c.Pipeline.TickInterval <= 0 {
		errs = append(errs, "pipeline.tick_interval must be positive")
	}
	if c.Pipeline.DetectTimeout < 0 {
		errs = append(errs, "pipeline.detect_timeout cannot be negative")
	}
	if c.Pipeline.HoldCycles < 0 {
		errs = append(errs, "pipeline.hold_cycles cannot be negative")
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	if c.Narration.Enabled && c.Narration.OpenAIKey == "" {
		errs = append(errs, "narration requires OPENAI_API_KEY")
	}
	if c.Server.Port == "" {
		errs = append(errs, "server.port is required")
	}
	if c.Server.StatusInterval < 0 {
		errs = append(errs, "server.status_interval cannot be negative")
	}
	if err := validator.New().Struct(c.Overlay); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("overlay.%s fails %s: %v", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, "overlay: "+err.Error())
		}
	}

	return errs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
