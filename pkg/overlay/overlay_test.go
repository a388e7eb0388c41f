package overlay

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

func blackRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func isBlack(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0 && g == 0 && b == 0
}

func TestLabelText(t *testing.T) {
	tests := []struct {
		det  detection.Detection
		want string
	}{
		{detection.Detection{Label: "person", Score: 0.87}, "person (87%)"},
		{detection.Detection{Label: "cup", Score: 0.995}, "cup (100%)"},
		{detection.Detection{Label: "bus", Score: 0.004}, "bus (0%)"},
		{detection.Detection{Label: "dog", Score: 0.125}, "dog (13%)"},
		{detection.Detection{Score: 0.5}, "Obstacle (50%)"},
	}
	for _, tt := range tests {
		if got := LabelText(tt.det); got != tt.want {
			t.Errorf("LabelText(%+v) = %q, want %q", tt.det, got, tt.want)
		}
	}
}

func TestLabelOrigin(t *testing.T) {
	x, y := LabelOrigin(detection.BBox{X: 20, Y: 50, Width: 10, Height: 10}, 18)
	if x != 20 || y != 32 {
		t.Errorf("above: got (%v,%v), want (20,32)", x, y)
	}
	x, y = LabelOrigin(detection.BBox{X: 20, Y: 5, Width: 10, Height: 10}, 18)
	if x != 20 || y != 5 {
		t.Errorf("inside: got (%v,%v), want (20,5)", x, y)
	}
}

func TestRenderNoSurface(t *testing.T) {
	r := New()
	tests := []struct {
		name string
		dst  draw.Image
		w, h int
	}{
		{"nil dst", nil, 10, 10},
		{"zero width", blackRGBA(10, 10), 0, 10},
		{"negative height", blackRGBA(10, 10), 10, -1},
		{"empty image", image.NewRGBA(image.Rect(0, 0, 0, 0)), 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Render(tt.dst, nil, tt.w, tt.h); !errors.Is(err, ErrNoSurface) {
				t.Errorf("err = %v, want ErrNoSurface", err)
			}
		})
	}
}

func TestRenderGuides(t *testing.T) {
	img := blackRGBA(300, 90)
	if err := New().Render(img, nil, 300, 90); err != nil {
		t.Fatal(err)
	}

	for _, x := range []int{100, 200} {
		if isBlack(img.At(x, 45)) && isBlack(img.At(x-1, 45)) {
			t.Errorf("no guide drawn near x=%d", x)
		}
	}
	for _, x := range []int{50, 150, 250} {
		if !isBlack(img.At(x, 45)) {
			t.Errorf("pixel at x=%d should be untouched", x)
		}
	}
}

func TestRenderWithoutGuides(t *testing.T) {
	img := blackRGBA(300, 90)
	New(WithGuides(false)).Render(img, nil, 300, 90)
	if !isBlack(img.At(100, 45)) || !isBlack(img.At(99, 45)) {
		t.Error("guides drawn although disabled")
	}
}

func TestRenderBox(t *testing.T) {
	img := blackRGBA(300, 120)
	dets := []detection.Detection{{
		BBox:  detection.BBox{X: 20, Y: 60, Width: 40, Height: 40},
		Label: "chair",
		Score: 0.8,
	}}
	if err := New(WithGuides(false)).Render(img, dets, 300, 120); err != nil {
		t.Fatal(err)
	}

	_, g, _, _ := img.At(20, 80).RGBA()
	if g>>8 < 200 {
		t.Errorf("left edge not stroked: %v", img.At(20, 80))
	}
	if !isBlack(img.At(40, 90)) {
		t.Errorf("box interior should stay untouched: %v", img.At(40, 90))
	}

	// The label sits above the box.
	found := false
	for y := 30; y < 58 && !found; y++ {
		for x := 20; x < 80; x++ {
			if !isBlack(img.At(x, y)) {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no label drawn above the box")
	}
}

func TestRenderSkipsNonFinite(t *testing.T) {
	img := blackRGBA(50, 50)
	dets := []detection.Detection{{BBox: detection.BBox{X: math.NaN(), Y: 0, Width: 10, Height: 10}}}
	if err := New(WithGuides(false)).Render(img, dets, 50, 50); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if !isBlack(img.At(x, y)) {
				t.Fatalf("pixel (%d,%d) drawn for a non-finite box", x, y)
			}
		}
	}
}

func TestRenderScalesToNonRGBA(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 600, 180))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	if err := New().Render(img, nil, 300, 90); err != nil {
		t.Fatal(err)
	}
	if isBlack(img.At(200, 90)) && isBlack(img.At(199, 90)) {
		t.Error("guide not scaled to destination size")
	}
	if !isBlack(img.At(100, 90)) {
		t.Error("unscaled guide position should stay untouched")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#00ff00", color.NRGBA{0, 255, 0, 255}},
		{"ff0000", color.NRGBA{255, 0, 0, 255}},
		{"#0f0", color.NRGBA{0, 255, 0, 255}},
		{"#ffff0080", color.NRGBA{255, 255, 0, 128}},
		{"#f008", color.NRGBA{255, 0, 0, 136}},
	}
	for _, tt := range tests {
		c, err := ParseHexColor(tt.in)
		if err != nil {
			t.Errorf("ParseHexColor(%q): %v", tt.in, err)
			continue
		}
		if c != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, c, tt.want)
		}
	}

	for _, bad := range []string{"", "#12345", "green", "#gggggg"} {
		if _, err := ParseHexColor(bad); err == nil {
			t.Errorf("ParseHexColor(%q) should fail", bad)
		}
	}
}

func TestRenderGuideColor(t *testing.T) {
	img := blackRGBA(300, 90)
	New(WithGuideColor(color.RGBA{255, 0, 0, 255})).Render(img, nil, 300, 90)

	r, g, _, _ := img.At(100, 45).RGBA()
	if r2, g2, _, _ := img.At(99, 45).RGBA(); r2 > r {
		r, g = r2, g2
	}
	if r == 0 || g != 0 {
		t.Errorf("guide should be red, got r=%d g=%d", r, g)
	}
}
