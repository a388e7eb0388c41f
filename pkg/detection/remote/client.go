// Package remote implements a Detector backed by a detection service
// speaking JSON over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-wayfind/internal/httpc"
	"github.com/teslashibe/go-wayfind/pkg/detection"
)

const backendName = "http"

// Client is an HTTP detection backend.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
	loaded atomic.Bool
}

// New creates an HTTP detector.
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		http:   client,
		logger: logger.With("component", "detection.remote", "url", cfg.BaseURL),
	}
}

// Name identifies the backend.
func (c *Client) Name() string {
	return backendName
}

// Load checks that the service is reachable. Services without a health
// route (the plain Flask backend answers 404 or 405) count as reachable;
// any other non-200 status fails the load.
func (c *Client) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/health"), nil)
	if err != nil {
		return detection.WrapError(backendName, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return detection.WrapError(backendName, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		c.logger.Info("detection service has no health route, assuming ready", "status", resp.StatusCode)
		c.loaded.Store(true)
		return nil
	default:
		return detection.WrapError(backendName, parseError(resp))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Backend != "" {
		c.logger.Info("detection service ready", "service_backend", health.Backend)
	}

	c.loaded.Store(true)
	return nil
}

// Detect uploads img and returns the service's detections.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	if !c.loaded.Load() {
		return nil, detection.WrapError(backendName, detection.ErrModelNotLoaded)
	}

	dataURL, err := detection.EncodeDataURL(img, c.config.JPEGQuality)
	if err != nil {
		return nil, detection.WrapError(backendName, err)
	}

	body, err := json.Marshal(DetectRequest{Image: dataURL, Language: c.config.Language})
	if err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/detect"), bytes.NewReader(body))
	if err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.doWithRetry(ctx, req, body)
	if err != nil {
		return nil, detection.WrapError(backendName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, detection.WrapError(backendName, parseError(resp))
	}

	var out DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("%w: %v", detection.ErrMalformedResponse, err))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return nil, detection.WrapError(backendName, fmt.Errorf("%w: %s", detection.ErrMalformedResponse, msg))
	}

	dets := make([]detection.Detection, 0, len(out.Detections))
	for _, w := range out.Detections {
		d, err := w.ToDetection()
		if err != nil {
			return nil, detection.WrapError(backendName, err)
		}
		dets = append(dets, d)
	}

	c.logger.Debug("detect complete",
		"detections", len(dets),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return dets, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.loaded.Store(false)
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

// doWithRetry performs the request, retrying 429 and 5xx with linear backoff.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = parseError(resp)
			resp.Body.Close()
			c.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads an error response into an APIError.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var errResp DetectResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &detection.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
