package navigation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

// DefaultLabel names a detection that arrived without a label.
const DefaultLabel = "Obstacle"

// Instruction is the guidance for one detection.
type Instruction struct {
	Zone    Zone
	Message string
	Label   string
}

type wireInstruction struct {
	Direction Zone   `json:"direction"`
	Message   string `json:"message"`
	Label     string `json:"label,omitempty"`
}

// MarshalJSON encodes the zone under "direction", the key the detection
// service uses.
func (in Instruction) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireInstruction{in.Zone, in.Message, in.Label})
}

// UnmarshalJSON implements json.Unmarshaler.
func (in *Instruction) UnmarshalJSON(b []byte) error {
	var w wireInstruction
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*in = Instruction{Zone: w.Direction, Message: w.Message, Label: w.Label}
	return nil
}

// Message returns the guidance sentence for label in zone.
func Message(label string, zone Zone) string {
	if label == "" {
		label = DefaultLabel
	}
	switch zone {
	case Left:
		return label + " on the left, move to the center or right."
	case Right:
		return label + " on the right, move to the center or left."
	default:
		return label + " in the center, avoid or move left/right."
	}
}

// Build produces one instruction per detection, in input order. Detections
// with non-finite geometry are skipped and reported through the returned
// error, which joins one *GeometryError per skipped detection. The result is
// never nil.
func Build(dets []detection.Detection, frameWidth float64) ([]Instruction, error) {
	out := make([]Instruction, 0, len(dets))

	if !finite(frameWidth) {
		if len(dets) == 0 {
			return out, nil
		}
		return out, &GeometryError{Index: -1, Field: "frame width", Value: frameWidth}
	}

	var errs []error
	for i, d := range dets {
		zone, err := Classify(d.BBox, frameWidth)
		if err != nil {
			var ge *GeometryError
			if errors.As(err, &ge) {
				ge.Index = i
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, Instruction{
			Zone:    zone,
			Message: Message(d.Label, zone),
			Label:   labelOrDefault(d.Label),
		})
	}
	return out, errors.Join(errs...)
}

func labelOrDefault(label string) string {
	if label == "" {
		return DefaultLabel
	}
	return label
}

// Summary counts instructions per zone.
type Summary struct {
	Left   int `json:"left"`
	Center int `json:"center"`
	Right  int `json:"right"`
}

// Total returns the number of instructions summarized.
func (s Summary) Total() int {
	return s.Left + s.Center + s.Right
}

// Count returns the count for zone.
func (s Summary) Count(z Zone) int {
	switch z {
	case Left:
		return s.Left
	case Right:
		return s.Right
	default:
		return s.Center
	}
}

// Clearest returns the zone with the fewest obstacles, preferring Center,
// then Left, then Right on ties.
func (s Summary) Clearest() Zone {
	best := Center
	for _, z := range [...]Zone{Left, Right} {
		if s.Count(z) < s.Count(best) {
			best = z
		}
	}
	return best
}

// MarshalJSON adds the clearest zone to the counts.
func (s Summary) MarshalJSON() ([]byte, error) {
	type counts Summary
	return json.Marshal(struct {
		counts
		Clearest Zone `json:"clearest"`
	}{counts(s), s.Clearest()})
}

func (s Summary) String() string {
	return fmt.Sprintf("left=%d center=%d right=%d", s.Left, s.Center, s.Right)
}

// Summarize counts instructions per zone.
func Summarize(instrs []Instruction) Summary {
	var s Summary
	for _, in := range instrs {
		switch in.Zone {
		case Left:
			s.Left++
		case Center:
			s.Center++
		case Right:
			s.Right++
		}
	}
	return s
}
