package navigation

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

func box(x, w float64) detection.BBox {
	return detection.BBox{X: x, Y: 0, Width: w, Height: 20}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		box   detection.BBox
		width float64
		want  Zone
	}{
		{"left", box(10, 20), 300, Left},
		{"center", box(140, 20), 300, Center},
		{"right", box(250, 20), 300, Right},
		{"on left boundary", box(90, 20), 300, Center},
		{"on right boundary", box(190, 20), 300, Center},
		{"just left of boundary", box(89.9, 20), 300, Left},
		{"just right of boundary", box(190.1, 20), 300, Right},
		{"zero width", box(50, 0), 300, Left},
		{"negative width", box(120, -20), 300, Center},
		{"outside frame left", box(-100, 10), 300, Left},
		{"outside frame right", box(400, 10), 300, Right},
		{"zero frame width at origin", box(0, 0), 0, Center},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.box, tt.width)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%+v, %v) = %v, want %v", tt.box, tt.width, got, tt.want)
			}
		})
	}
}

func TestClassifyInvalidGeometry(t *testing.T) {
	tests := []struct {
		name  string
		box   detection.BBox
		width float64
		field string
	}{
		{"nan x", box(math.NaN(), 10), 300, "x"},
		{"inf width", box(10, math.Inf(1)), 300, "width"},
		{"nan y", detection.BBox{X: 10, Y: math.NaN(), Width: 10, Height: 10}, 300, "y"},
		{"inf height", detection.BBox{X: 10, Width: 10, Height: math.Inf(-1)}, 300, "height"},
		{"nan frame", box(10, 10), math.NaN(), "frame width"},
		{"inf frame", box(10, 10), math.Inf(-1), "frame width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.box, tt.width)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Fatalf("err = %v, want ErrInvalidGeometry", err)
			}
			var ge *GeometryError
			if !errors.As(err, &ge) || ge.Field != tt.field {
				t.Errorf("GeometryError = %+v, want field %q", ge, tt.field)
			}
		})
	}
}

func TestBuildExcludesNonFiniteVertical(t *testing.T) {
	dets := []detection.Detection{
		{BBox: detection.BBox{X: 10, Y: math.NaN(), Width: 20, Height: 20}, Label: "person"},
		{BBox: detection.BBox{X: 140, Y: 0, Width: 20, Height: math.Inf(1)}, Label: "chair"},
		{BBox: box(250, 20), Label: "door"},
	}

	got, err := Build(dets, 300)
	if len(got) != 1 || got[0].Label != "door" {
		t.Fatalf("instructions = %+v, want only the finite detection", got)
	}
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("err = %v, want ErrInvalidGeometry", err)
	}

	fields := map[int]string{}
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ge *GeometryError
		if errors.As(e, &ge) {
			fields[ge.Index] = ge.Field
		}
	}
	if fields[0] != "y" || fields[1] != "height" || len(fields) != 2 {
		t.Errorf("geometry errors = %v", fields)
	}

	for i, d := range dets[:2] {
		if d.BBox.Finite() {
			t.Errorf("detection %d should not be drawable either", i)
		}
	}
}

func TestBoundaries(t *testing.T) {
	l, r := Boundaries(300)
	if l != 100 || r != 200 {
		t.Errorf("Boundaries(300) = %v, %v", l, r)
	}
}

func TestBuild(t *testing.T) {
	dets := []detection.Detection{
		{BBox: box(10, 20), Label: "person", Score: 0.9},
		{BBox: box(140, 20), Label: "chair", Score: 0.7},
		{BBox: box(250, 20), Label: "", Score: 0.6},
	}

	got, err := Build(dets, 300)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != len(dets) {
		t.Fatalf("len = %d, want %d", len(got), len(dets))
	}

	want := []Instruction{
		{Left, "person on the left, move to the center or right.", "person"},
		{Center, "chair in the center, avoid or move left/right.", "chair"},
		{Right, "Obstacle on the right, move to the center or left.", "Obstacle"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instr[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	got, err := Build(nil, 300)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Build(nil) = %#v, %v; want empty non-nil", got, err)
	}
}

func TestBuildNoDeduplication(t *testing.T) {
	d := detection.Detection{BBox: box(10, 20), Label: "cup"}
	got, _ := Build([]detection.Detection{d, d, d}, 300)
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestBuildSkipsInvalidGeometry(t *testing.T) {
	dets := []detection.Detection{
		{BBox: box(10, 20), Label: "a"},
		{BBox: box(math.NaN(), 20), Label: "b"},
		{BBox: box(250, 20), Label: "c"},
		{BBox: box(10, math.Inf(1)), Label: "d"},
	}

	got, err := Build(dets, 300)
	if len(got) != 2 || got[0].Label != "a" || got[1].Label != "c" {
		t.Errorf("instructions = %+v", got)
	}
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("err = %v, want ErrInvalidGeometry", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "detection 1 x") || !strings.Contains(msg, "detection 3 width") {
		t.Errorf("err = %q, want indices 1 and 3", msg)
	}
}

func TestBuildInvalidFrameWidth(t *testing.T) {
	dets := []detection.Detection{{BBox: box(10, 20)}}
	got, err := Build(dets, math.NaN())
	if !errors.Is(err, ErrInvalidGeometry) || len(got) != 0 {
		t.Errorf("Build = %v, %v", got, err)
	}
}

func TestSummarize(t *testing.T) {
	instrs := []Instruction{{Zone: Left}, {Zone: Left}, {Zone: Right}}
	s := Summarize(instrs)
	if s.Left != 2 || s.Center != 0 || s.Right != 1 || s.Total() != 3 {
		t.Errorf("Summarize = %+v", s)
	}
	if s.Clearest() != Center {
		t.Errorf("Clearest = %v, want center", s.Clearest())
	}

	s = Summary{Left: 0, Center: 2, Right: 0}
	if s.Clearest() != Left {
		t.Errorf("Clearest = %v, want left on tie", s.Clearest())
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"left":0,"center":2,"right":0,"clearest":"left"}`; string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
	var back Summary
	if err := json.Unmarshal(b, &back); err != nil || back != s {
		t.Errorf("round trip = %+v, %v", back, err)
	}
}

func TestZoneText(t *testing.T) {
	for _, z := range Zones {
		b, err := z.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Zone
		if err := back.UnmarshalText(b); err != nil || back != z {
			t.Errorf("round trip %v -> %s -> %v (%v)", z, b, back, err)
		}
	}
	if _, err := Zone(7).MarshalText(); err == nil {
		t.Error("expected error for invalid zone")
	}
	var z Zone
	if err := z.UnmarshalText([]byte("up")); err == nil {
		t.Error("expected error for unknown zone text")
	}
}

func TestInstructionJSON(t *testing.T) {
	in := Instruction{Zone: Right, Message: Message("bus", Right), Label: "bus"}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"direction":"right"`) {
		t.Errorf("json = %s", b)
	}

	var out Instruction
	if err := json.Unmarshal(b, &out); err != nil || out != in {
		t.Errorf("decoded %+v, %v", out, err)
	}
}
