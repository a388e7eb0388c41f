// Package detection defines the object detection data model and the Detector
// capability implemented by the local and remote backends.
package detection

import (
	"context"
	"fmt"
	"image"
	"math"
)

// BBox is an axis-aligned box in frame pixel coordinates.
type BBox struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// CenterX returns the horizontal center of the box.
func (b BBox) CenterX() float64 {
	return b.X + b.Width/2
}

// Finite reports whether every coordinate is a finite number.
func (b BBox) Finite() bool {
	for _, v := range [...]float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Rect rounds the box to an integer rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)),
		int(math.Round(b.Y)),
		int(math.Round(b.X+b.Width)),
		int(math.Round(b.Y+b.Height)),
	)
}

// Detection is one object found in a frame.
type Detection struct {
	BBox  BBox    `json:"bbox" msgpack:"bbox"`
	Label string  `json:"label" msgpack:"label"`
	Score float64 `json:"score" msgpack:"score"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f [%.0f,%.0f %.0fx%.0f]",
		d.Label, d.Score, d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height)
}

// Detector finds objects in an image.
//
// Load prepares the backend (reads model weights or checks the remote
// service) and must succeed before Detect is useful. Detect must not retain
// img after returning. Implementations must honor ctx cancellation.
type Detector interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}

// Named is implemented by detectors that report a backend name for logs and errors.
type Named interface {
	Name() string
}

// NameOf returns the backend name of d, or its Go type when it has none.
func NameOf(d Detector) string {
	if n, ok := d.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", d)
}
