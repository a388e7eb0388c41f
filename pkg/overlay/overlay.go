// Package overlay draws detection boxes, labels and zone guides onto frames.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
)

// ErrNoSurface is returned when there is nothing to draw on.
var ErrNoSurface = errors.New("overlay: no drawing surface")

var regular *truetype.Font

func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Config holds renderer styling.
type Config struct {
	BoxColor   color.Color
	TextColor  color.Color
	LabelFill  color.Color // nil draws no label background
	GuideColor color.Color
	LineWidth  float64
	GuideWidth float64
	FontSize   float64
	Guides     bool
}

// Option is a functional option for configuring the renderer.
type Option func(*Config)

// WithBoxColor sets the box and label color.
func WithBoxColor(c color.Color) Option {
	return func(cfg *Config) { cfg.BoxColor = c }
}

// WithGuideColor sets the zone guide color.
func WithGuideColor(c color.Color) Option {
	return func(cfg *Config) { cfg.GuideColor = c }
}

// WithFontSize sets the label font size in points.
func WithFontSize(size float64) Option {
	return func(cfg *Config) { cfg.FontSize = size }
}

// WithGuides enables or disables the zone guides.
func WithGuides(on bool) Option {
	return func(cfg *Config) { cfg.Guides = on }
}

// ParseHexColor parses "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa". The
// leading '#' is optional.
func ParseHexColor(s string) (color.Color, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	switch len(h) {
	case 6:
		h += "ff"
	case 8:
	default:
		return nil, fmt.Errorf("overlay: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("overlay: invalid hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// DefaultConfig returns the default styling.
func DefaultConfig() Config {
	return Config{
		BoxColor:   color.RGBA{0, 255, 0, 255},
		TextColor:  color.RGBA{0, 0, 0, 255},
		LabelFill:  color.RGBA{0, 255, 0, 255},
		GuideColor: color.RGBA{255, 255, 0, 255},
		LineWidth:  2,
		GuideWidth: 1,
		FontSize:   14,
		Guides:     true,
	}
}

// Renderer draws overlays. It is stateless and safe for concurrent use.
type Renderer struct {
	config Config
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Renderer{config: cfg}
}

// LabelText returns the caption drawn for d, e.g. "person (87%)".
func LabelText(d detection.Detection) string {
	label := d.Label
	if label == "" {
		label = navigation.DefaultLabel
	}
	return fmt.Sprintf("%s (%d%%)", label, int(math.Round(d.Score*100)))
}

// LabelOrigin returns the top-left corner of the label for a box: above the
// box, or just inside it when there is no room above.
func LabelOrigin(box detection.BBox, textHeight float64) (x, y float64) {
	x = box.X
	if box.Y-textHeight >= 0 {
		return x, box.Y - textHeight
	}
	return x, math.Max(box.Y, 0)
}

// Render draws dets and the zone guides onto dst. frameWidth and
// frameHeight give the coordinate space of the detections; dst is scaled
// from it when its size differs. Detections with non-finite geometry are
// skipped.
func (r *Renderer) Render(dst draw.Image, dets []detection.Detection, frameWidth, frameHeight int) error {
	if dst == nil || frameWidth <= 0 || frameHeight <= 0 {
		return ErrNoSurface
	}
	b := dst.Bounds()
	if b.Empty() {
		return ErrNoSurface
	}

	var dc *gg.Context
	rgba, inPlace := dst.(*image.RGBA)
	if inPlace && rgba.Rect.Min == (image.Point{}) {
		dc = gg.NewContextForRGBA(rgba)
	} else {
		inPlace = false
		dc = gg.NewContext(b.Dx(), b.Dy())
		draw.Draw(dc.Image().(*image.RGBA), dc.Image().Bounds(), dst, b.Min, draw.Src)
	}

	dc.Scale(float64(b.Dx())/float64(frameWidth), float64(b.Dy())/float64(frameHeight))
	r.draw(dc, dets, float64(frameWidth), float64(frameHeight))

	if !inPlace {
		draw.Draw(dst, b, dc.Image(), image.Point{}, draw.Src)
	}
	return nil
}

func (r *Renderer) draw(dc *gg.Context, dets []detection.Detection, w, h float64) {
	cfg := r.config

	if cfg.Guides {
		left, right := navigation.Boundaries(w)
		dc.SetColor(cfg.GuideColor)
		dc.SetLineWidth(cfg.GuideWidth)
		dc.DrawLine(left, 0, left, h)
		dc.DrawLine(right, 0, right, h)
		dc.Stroke()
	}

	dc.SetFontFace(truetype.NewFace(regular, &truetype.Options{Size: cfg.FontSize}))
	for _, d := range dets {
		if !d.BBox.Finite() {
			continue
		}
		drawRectangleEmpty(dc, d.BBox, cfg.BoxColor, cfg.LineWidth)

		text := LabelText(d)
		tw, th := dc.MeasureString(text)
		th += 4
		x, y := LabelOrigin(d.BBox, th)
		if cfg.LabelFill != nil {
			dc.SetColor(cfg.LabelFill)
			dc.DrawRectangle(x, y, tw+4, th)
			dc.Fill()
		}
		dc.SetColor(cfg.TextColor)
		dc.DrawStringAnchored(text, x+2, y+th/2, 0, 0.35)
	}
}

func drawRectangleEmpty(dc *gg.Context, b detection.BBox, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
	dc.Stroke()
}
