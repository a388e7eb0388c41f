// Package navigation turns detections into directional guidance. The frame
// is split into equal vertical thirds and each detection is assigned the
// third containing its horizontal center.
package navigation

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

// Zone is a vertical third of the frame.
type Zone int

const (
	Left Zone = iota
	Center
	Right
)

// Zones lists every zone in left-to-right order.
var Zones = [...]Zone{Left, Center, Right}

func (z Zone) String() string {
	switch z {
	case Left:
		return "left"
	case Center:
		return "center"
	case Right:
		return "right"
	}
	return fmt.Sprintf("zone(%d)", int(z))
}

// MarshalText implements encoding.TextMarshaler.
func (z Zone) MarshalText() ([]byte, error) {
	switch z {
	case Left, Center, Right:
		return []byte(z.String()), nil
	}
	return nil, fmt.Errorf("navigation: invalid zone %d", int(z))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (z *Zone) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*z = Left
	case "center":
		*z = Center
	case "right":
		*z = Right
	default:
		return fmt.Errorf("navigation: unknown zone %q", b)
	}
	return nil
}

// ErrInvalidGeometry is returned for non-finite coordinates or frame width.
var ErrInvalidGeometry = errors.New("navigation: invalid geometry")

// GeometryError identifies the detection and field that made geometry invalid.
// Index is -1 when the frame width itself is invalid.
type GeometryError struct {
	Index int
	Field string
	Value float64
}

func (e *GeometryError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("navigation: invalid geometry: %s is %v", e.Field, e.Value)
	}
	return fmt.Sprintf("navigation: invalid geometry: detection %d %s is %v", e.Index, e.Field, e.Value)
}

// Unwrap returns ErrInvalidGeometry.
func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

// Boundaries returns the x positions separating the zones.
func Boundaries(frameWidth float64) (left, right float64) {
	return frameWidth / 3, 2 * frameWidth / 3
}

// Classify assigns box to a zone by its horizontal center. A center exactly
// on a boundary is Center. Negative or zero widths are accepted as given.
// Every coordinate must be finite, so a box the overlay cannot draw never
// yields guidance either.
func Classify(box detection.BBox, frameWidth float64) (Zone, error) {
	if !finite(frameWidth) {
		return Center, &GeometryError{Index: -1, Field: "frame width", Value: frameWidth}
	}
	if err := checkBox(box); err != nil {
		return Center, err
	}

	cx := box.CenterX()
	left, right := Boundaries(frameWidth)
	switch {
	case cx < left:
		return Left, nil
	case cx > right:
		return Right, nil
	default:
		return Center, nil
	}
}

// checkBox reports the first non-finite coordinate of box.
func checkBox(box detection.BBox) error {
	fields := [...]struct {
		name string
		v    float64
	}{{"x", box.X}, {"y", box.Y}, {"width", box.Width}, {"height", box.Height}}
	for _, f := range fields {
		if !finite(f.v) {
			return &GeometryError{Index: -1, Field: f.name, Value: f.v}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
