package remote

import (
	"fmt"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

// DetectRequest is the body of POST /api/detect.
type DetectRequest struct {
	Image    string `json:"image" validate:"required,startswith=data:image/"`
	Language string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// DetectResponse is the body returned by POST /api/detect.
type DetectResponse struct {
	Success      bool              `json:"success"`
	Detections   []WireDetection   `json:"detections,omitempty"`
	Instructions []WireInstruction `json:"instructions,omitempty"`
	Language     string            `json:"language,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// WireDetection is a detection as the service encodes it: bbox is [x, y, w, h].
type WireDetection struct {
	BBox  []float64 `json:"bbox"`
	Class string    `json:"class"`
	Score float64   `json:"score"`
}

// WireInstruction is one guidance message as the service encodes it.
type WireInstruction struct {
	Message   string `json:"message"`
	Direction string `json:"direction"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// FromDetection converts a detection to its wire form.
func FromDetection(d detection.Detection) WireDetection {
	return WireDetection{
		BBox:  []float64{d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height},
		Class: d.Label,
		Score: d.Score,
	}
}

// ToDetection converts a wire detection, rejecting a bbox without four values.
func (w WireDetection) ToDetection() (detection.Detection, error) {
	if len(w.BBox) != 4 {
		return detection.Detection{}, fmt.Errorf("%w: bbox has %d values, want 4",
			detection.ErrMalformedResponse, len(w.BBox))
	}
	return detection.Detection{
		BBox: detection.BBox{
			X:      w.BBox[0],
			Y:      w.BBox[1],
			Width:  w.BBox[2],
			Height: w.BBox[3],
		},
		Label: w.Class,
		Score: w.Score,
	}, nil
}
