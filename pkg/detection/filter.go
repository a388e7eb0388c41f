package detection

import (
	"context"
	"image"
	"strings"
)

// Filter decides whether a detection is kept.
type Filter func(Detection) bool

// MinScore keeps detections scoring at least min.
func MinScore(min float64) Filter {
	return func(d Detection) bool { return d.Score >= min }
}

// Labels keeps detections whose label is in the allow-list (case-insensitive).
// An empty list keeps everything.
func Labels(allow ...string) Filter {
	if len(allow) == 0 {
		return func(Detection) bool { return true }
	}
	set := make(map[string]struct{}, len(allow))
	for _, l := range allow {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return func(d Detection) bool {
		_, ok := set[strings.ToLower(d.Label)]
		return ok
	}
}

// Apply returns the detections that pass every filter, preserving order.
// The input slice is not modified.
func Apply(dets []Detection, filters ...Filter) []Detection {
	out := make([]Detection, 0, len(dets))
next:
	for _, d := range dets {
		for _, f := range filters {
			if !f(d) {
				continue next
			}
		}
		out = append(out, d)
	}
	return out
}

// Filtered wraps a Detector and applies filters to every result.
type Filtered struct {
	Detector
	filters []Filter
}

// WithFilters returns d with filters applied to its output.
func WithFilters(d Detector, filters ...Filter) *Filtered {
	return &Filtered{Detector: d, filters: filters}
}

// Detect runs the wrapped detector and filters its result.
func (f *Filtered) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	dets, err := f.Detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return Apply(dets, f.filters...), nil
}

// Name reports the wrapped detector's name.
func (f *Filtered) Name() string {
	return NameOf(f.Detector)
}
