// Package yolo is a vision adapter backed by a YOLOv8 ONNX model run through
// the OpenCV DNN module.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultConfig returns production defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector runs YOLOv8 over JPEG frames.
type Detector struct {
	cfg       Config
	inputSize image.Point

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// New loads the model. A missing or unreadable model yields an InitError.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); errors.Is(err, os.ErrNotExist) {
		return nil, detection.WrapInit(detection.StreamVision,
			fmt.Errorf("%w: %s", detection.ErrModelNotFound, cfg.ModelPath))
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, detection.WrapInit(detection.StreamVision,
			fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath))
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		cfg:       cfg,
		net:       net,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Factory returns a VisionFactory that loads cfg on each call.
func Factory(cfg Config) detection.VisionFactory {
	return func() (detection.VisionDetector, error) {
		d, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Detect finds objects in the frame's JPEG payload.
func (d *Detector) Detect(ctx context.Context, frame detection.Frame) ([]detection.VisionDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, detection.ErrClosed
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", frame.Seq, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("decode frame %d: empty image", frame.Seq)
	}

	if flag, ok := rotateFlag(frame.Rotation); ok {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(img, &rotated, flag)
		img, rotated = rotated, img
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 84, N] = 4 box coords + 80 class scores per anchor.
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	cands := decodeOutput(data, dims[1], dims[2], d.cfg, imgW, imgH)
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, d.cfg.ConfidenceThresh, d.cfg.NMSThresh)

	out := make([]detection.VisionDetection, 0, len(indices))
	for _, idx := range indices {
		out = append(out, cands[idx].toDetection(imgW, imgH))
	}
	return out, nil
}

// Close releases the network. Further Detect calls return ErrClosed.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

var _ detection.VisionDetector = (*Detector)(nil)

func rotateFlag(degrees int) (gocv.RotateFlag, bool) {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}
