package yolo

import (
	"image"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

type candidate struct {
	rect    image.Rectangle
	score   float32
	classID int
}

func (c candidate) detection(classes []string) detection.Detection {
	label := "object"
	if c.classID >= 0 && c.classID < len(classes) {
		label = classes[c.classID]
	}
	return detection.Detection{
		BBox: detection.BBox{
			X:      float64(c.rect.Min.X),
			Y:      float64(c.rect.Min.Y),
			Width:  float64(c.rect.Dx()),
			Height: float64(c.rect.Dy()),
		},
		Label: label,
		Score: float64(c.score),
	}
}

// decode reads a channel-major YOLOv8 tensor with rows = 4+classes and
// cols = anchors, keeping anchors above the confidence threshold. Boxes are
// scaled from model input to image pixels and clamped at zero.
func decode(data []float32, rows, cols int, cfg Config, scaleX, scaleY float32) []candidate {
	if rows < 5 || len(data) < rows*cols {
		return nil
	}

	var out []candidate
	for i := 0; i < cols; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < rows; c++ {
			if s := data[c*cols+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < cfg.ConfidenceThresh {
			continue
		}

		cx := data[0*cols+i]
		cy := data[1*cols+i]
		w := data[2*cols+i]
		h := data[3*cols+i]

		x1 := max(int((cx-w/2)*scaleX), 0)
		y1 := max(int((cy-h/2)*scaleY), 0)
		x2 := int((cx + w/2) * scaleX)
		y2 := int((cy + h/2) * scaleY)

		out = append(out, candidate{
			rect:    image.Rect(x1, y1, x2, y2),
			score:   best,
			classID: bestID,
		})
	}
	return out
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
