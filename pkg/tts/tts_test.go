package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		audio, err := mock.Synthesize(ctx, "chair ahead")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(audio.Data) == 0 || audio.CharCount != 11 {
			t.Errorf("audio = %d bytes, %d chars", len(audio.Data), audio.CharCount)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		mock.Health(ctx)
		if mock.CallCount("Synthesize") != 1 || mock.CallCount("Health") != 1 {
			t.Errorf("calls = %+v", mock.Calls())
		}
		if got := mock.Texts(); len(got) != 1 || got[0] != "chair ahead" {
			t.Errorf("Texts = %v", got)
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("offline")
	mock := tts.WithError(testErr)

	if _, err := mock.Synthesize(context.Background(), "x"); !errors.Is(err, testErr) {
		t.Errorf("Synthesize err = %v", err)
	}
	if err := mock.Health(context.Background()); !errors.Is(err, testErr) {
		t.Errorf("Health err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []tts.Option
		want error
	}{
		{"missing key", nil, tts.ErrNoAPIKey},
		{"speed too high", []tts.Option{tts.WithAPIKey("k"), tts.WithSpeed(5)}, tts.ErrInvalidSpeed},
		{"ok", []tts.Option{tts.WithAPIKey("k")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			cfg.Apply(tt.opts...)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAISynthesize(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer server.Close()

	p, err := tts.NewOpenAI(
		tts.WithAPIKey("sk-test"),
		tts.WithBaseURL(server.URL),
		tts.WithVoice(tts.VoiceNova),
		tts.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	audio, err := p.Synthesize(context.Background(), "door on the right")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "ID3fake" || audio.Encoding != tts.EncodingMP3 {
		t.Errorf("audio = %+v", audio)
	}
	if got["voice"] != "nova" || got["input"] != "door on the right" || got["model"] != tts.ModelTTS1 {
		t.Errorf("request = %v", got)
	}
	if audio.Encoding.ContentType() != "audio/mpeg" {
		t.Errorf("ContentType = %q", audio.Encoding.ContentType())
	}
}

func TestOpenAIEmptyText(t *testing.T) {
	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL("http://127.0.0.1:1"))
	if _, err := p.Synthesize(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestOpenAIRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	p, _ := tts.NewOpenAI(
		tts.WithAPIKey("k"),
		tts.WithBaseURL(server.URL),
		tts.WithRetry(2, time.Millisecond),
		tts.WithLogger(log.Discard()),
	)
	if _, err := p.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestOpenAIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(server.URL), tts.WithLogger(log.Discard()))

	_, err := p.Synthesize(context.Background(), "hi")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.IsRetryable() || apiErr.Message != "bad key" || apiErr.Code != "invalid_api_key" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	if err := p.Health(context.Background()); !errors.As(err, &apiErr) {
		t.Errorf("Health err = %v", err)
	}
}

func TestWrapError(t *testing.T) {
	if tts.WrapError("openai", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
	err := tts.WrapError("openai", tts.ErrEmptyText)
	var pe *tts.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "openai" || !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v", err)
	}
}
