// Package yolo runs a YOLOv8 ONNX model locally through OpenCV's dnn module.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

const backendName = "yolo"

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Classes          []string
	Logger           *slog.Logger
}

// DefaultConfig returns production defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		Classes:          COCOClasses,
		Logger:           slog.Default(),
	}
}

// Detector uses YOLOv8 for general object detection.
type Detector struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// New creates an unloaded detector. Call Load before Detect.
func New(cfg Config) *Detector {
	if cfg.Classes == nil {
		cfg.Classes = COCOClasses
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		config: cfg,
		logger: logger.With("component", "detection.yolo", "model", cfg.ModelPath),
	}
}

// Name identifies the backend.
func (d *Detector) Name() string {
	return backendName
}

// Load reads the ONNX weights. A missing or empty model file fails.
func (d *Detector) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(d.config.ModelPath)
	if err != nil {
		return detection.WrapError(backendName, fmt.Errorf("model file: %w", err))
	}
	if info.Size() == 0 {
		return detection.WrapError(backendName, fmt.Errorf("model file %s is empty", d.config.ModelPath))
	}

	net := gocv.ReadNetFromONNX(d.config.ModelPath)
	if net.Empty() {
		return detection.WrapError(backendName, fmt.Errorf("failed to load model from %s", d.config.ModelPath))
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.net.Close()
	}
	d.net = net
	d.loaded = true

	d.logger.Info("model loaded")
	return nil
}

// Detect finds objects in img. Boxes are in img's pixel coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, detection.WrapError(backendName, detection.ErrEmptyImage)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil, detection.WrapError(backendName, detection.ErrModelNotLoaded)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("convert image: %w", err))
	}
	defer mat.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.config.InputWidth, d.config.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 4+classes, anchors]
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, detection.WrapError(backendName, fmt.Errorf("read output: %w", err))
	}
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, detection.WrapError(backendName, errors.New("unexpected output shape"))
	}

	cands := decode(data, sizes[1], sizes[2], d.config,
		float32(mat.Cols())/float32(d.config.InputWidth),
		float32(mat.Rows())/float32(d.config.InputHeight))
	if len(cands) == 0 {
		return []detection.Detection{}, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.rect
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]detection.Detection, 0, len(keep))
	for _, idx := range keep {
		dets = append(dets, cands[idx].detection(d.config.Classes))
	}

	d.logger.Debug("detect complete", "detections", len(dets))
	return dets, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.loaded = false
		return d.net.Close()
	}
	return nil
}
