// Package capture provides frames from a camera or other image source.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"
)

// Sentinel errors for common conditions.
var (
	// ErrNotOpen is returned by Read before Open or after Close.
	ErrNotOpen = errors.New("capture: source not open")

	// ErrNoFrame is returned when the device produced an empty frame.
	ErrNoFrame = errors.New("capture: empty frame")
)

// Frame is one captured image.
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// NewFrame converts img to a frame whose image starts at the origin.
func NewFrame(img image.Image, seq uint64) *Frame {
	return &Frame{Image: toRGBA(img), Seq: seq, CapturedAt: time.Now()}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := *f
	if f.Image != nil {
		img := *f.Image
		img.Pix = append([]uint8(nil), f.Image.Pix...)
		out.Image = &img
	}
	return &out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

// Source produces frames. Read blocks until a frame is available or ctx ends.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// SourceError wraps a failure to open or read a source.
type SourceError struct {
	Op  string // "open" or "read"
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}
