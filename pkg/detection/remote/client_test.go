package remote

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/detection"
)

func newFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func newTestServer(t *testing.T, detect http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Backend: "mock"})
	})
	mux.HandleFunc("/api/detect", detect)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *Client {
	return New(
		WithBaseURL(url),
		WithRetry(2, time.Millisecond),
		WithLogger(log.Discard()),
	)
}

func TestDetect(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req DetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.HasPrefix(req.Image, "data:image/jpeg;base64,") {
			t.Errorf("image is not a JPEG data URL: %.30s", req.Image)
		}
		if req.Language != "es" {
			t.Errorf("language = %q, want es", req.Language)
		}
		json.NewEncoder(w).Encode(DetectResponse{
			Success: true,
			Detections: []WireDetection{
				{BBox: []float64{10, 0, 20, 20}, Class: "person", Score: 0.91},
				{BBox: []float64{140, 5, 20, 30}, Class: "chair", Score: 0.6},
			},
			Instructions: []WireInstruction{{Message: "ignored", Direction: "left"}},
		})
	})

	c := New(WithBaseURL(srv.URL), WithLanguage("es"), WithLogger(log.Discard()))
	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	dets, err := c.Detect(ctx, newFrame())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}
	want := detection.Detection{BBox: detection.BBox{X: 10, Y: 0, Width: 20, Height: 20}, Label: "person", Score: 0.91}
	if dets[0] != want {
		t.Errorf("dets[0] = %+v, want %+v", dets[0], want)
	}
	if dets[1].Label != "chair" {
		t.Errorf("order not preserved: %+v", dets)
	}
}

func TestDetectBeforeLoad(t *testing.T) {
	c := newClient("http://127.0.0.1:1")
	_, err := c.Detect(context.Background(), newFrame())
	if !errors.Is(err, detection.ErrModelNotLoaded) {
		t.Errorf("err = %v, want ErrModelNotLoaded", err)
	}
}

func TestLoadUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Load(context.Background())
	var apiErr *detection.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want APIError 503", err)
	}
}

func TestLoadWithoutHealthRoute(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"method not allowed", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Only /api/detect is served, like the plain Flask backend.
			mux := http.NewServeMux()
			mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			mux.HandleFunc("/api/detect", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(DetectResponse{
					Success:    true,
					Detections: []WireDetection{{BBox: []float64{10, 0, 20, 20}, Class: "person", Score: 0.9}},
				})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			c := newClient(srv.URL)
			if err := c.Load(context.Background()); err != nil {
				t.Fatalf("Load: %v", err)
			}
			dets, err := c.Detect(context.Background(), newFrame())
			if err != nil || len(dets) != 1 || dets[0].Label != "person" {
				t.Errorf("Detect = %+v, %v", dets, err)
			}
		})
	}
}

func TestDetectRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(DetectResponse{Error: "cuda busy"})
			return
		}
		json.NewEncoder(w).Encode(DetectResponse{Success: true})
	})

	c := newClient(srv.URL)
	c.Load(context.Background())
	dets, err := c.Detect(context.Background(), newFrame())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 0 || dets == nil {
		t.Errorf("dets = %#v, want empty non-nil", dets)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDetectGivesUpAfterRetries(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(DetectResponse{Error: "slow down"})
	})

	c := newClient(srv.URL)
	c.Load(context.Background())
	_, err := c.Detect(context.Background(), newFrame())

	var de *detection.DetectionError
	if !errors.As(err, &de) || de.Backend != "http" {
		t.Fatalf("err = %v, want DetectionError", err)
	}
	var apiErr *detection.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() || apiErr.Message != "slow down" {
		t.Errorf("err = %v, want rate-limited APIError", err)
	}
}

func TestDetectMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"failure", `{"success":false,"error":"bad frame"}`},
		{"short bbox", `{"success":true,"detections":[{"bbox":[1,2,3],"class":"cup","score":0.5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			c := newClient(srv.URL)
			c.Load(context.Background())
			_, err := c.Detect(context.Background(), newFrame())
			if !errors.Is(err, detection.ErrMalformedResponse) {
				t.Errorf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestDetectHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := newClient(srv.URL)
	c.Load(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Detect(ctx, newFrame())
	if err == nil {
		t.Fatal("expected error on deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Detect did not return promptly after deadline")
	}
}

func TestWireDetectionRoundTrip(t *testing.T) {
	d := detection.Detection{BBox: detection.BBox{X: 1, Y: 2, Width: 3, Height: 4}, Label: "bus", Score: 0.5}
	got, err := FromDetection(d).ToDetection()
	if err != nil || got != d {
		t.Errorf("round trip = %+v, %v", got, err)
	}
}
