package yolo

import (
	"image"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

type candidate struct {
	box     image.Rectangle // Pixels in the source image
	score   float32
	classID int
}

func (c candidate) toDetection(imgW, imgH float32) detection.VisionDetection {
	label := "unknown"
	if c.classID >= 0 && c.classID < len(COCOClasses) {
		label = COCOClasses[c.classID]
	}
	return detection.VisionDetection{
		Label: label,
		Score: float64(c.score),
		Box: detection.BoundingBox{
			X: float64(c.box.Min.X) / float64(imgW),
			Y: float64(c.box.Min.Y) / float64(imgH),
			W: float64(c.box.Dx()) / float64(imgW),
			H: float64(c.box.Dy()) / float64(imgH),
		},
	}
}

// decodeOutput reads a channel-major YOLOv8 tensor of attrs x anchors and
// keeps anchors whose best class clears the confidence threshold. Boxes are
// scaled from model input space to the source image.
func decodeOutput(data []float32, attrs, anchors int, cfg Config, imgW, imgH float32) []candidate {
	if attrs <= 4 || len(data) < attrs*anchors {
		return nil
	}

	sx := imgW / float32(cfg.InputWidth)
	sy := imgH / float32(cfg.InputHeight)

	var out []candidate
	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < cfg.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		out = append(out, candidate{
			box: image.Rect(
				int((cx-w/2)*sx), int((cy-h/2)*sy),
				int((cx+w/2)*sx), int((cy+h/2)*sy),
			),
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
