package webcam

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/capture"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"default", DefaultConfig(), 0},
		{"negative device", Config{Device: -1}, 1},
		{"negative size", Config{Width: -1}, 1},
		{"everything wrong", Config{Device: -2, Height: -1, FPS: -5}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Validate(); len(got) != tt.want {
				t.Errorf("Validate() = %v, want %d problems", got, tt.want)
			}
		})
	}
}

func TestOpenInvalidConfig(t *testing.T) {
	s := New(Config{Device: -1, Logger: log.Discard()})
	var se *capture.SourceError
	if err := s.Open(context.Background()); !errors.As(err, &se) || se.Op != "open" {
		t.Errorf("err = %v, want open SourceError", err)
	}
}

func TestReadBeforeOpen(t *testing.T) {
	s := New(Config{Logger: log.Discard()})
	if _, err := s.Read(context.Background()); !errors.Is(err, capture.ErrNotOpen) {
		t.Errorf("err = %v, want ErrNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on unopened source: %v", err)
	}
}
