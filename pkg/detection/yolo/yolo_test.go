package yolo

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// tensor builds a channel-major [attrs x anchors] output.
func tensor(attrs int, anchors [][]float32) []float32 {
	data := make([]float32, attrs*len(anchors))
	for i, a := range anchors {
		for c, v := range a {
			data[c*len(anchors)+i] = v
		}
	}
	return data
}

func TestDecodeOutput(t *testing.T) {
	cfg := Config{ConfidenceThresh: 0.5, InputWidth: 100, InputHeight: 100}
	const attrs = 4 + 3

	data := tensor(attrs, [][]float32{
		// cx, cy, w, h, person, bicycle, car
		{50, 50, 20, 40, 0.9, 0.1, 0.0},
		{10, 10, 4, 4, 0.2, 0.3, 0.1}, // below threshold
		{80, 20, 10, 10, 0.0, 0.1, 0.6},
	})

	got := decodeOutput(data, attrs, 3, cfg, 200, 100)
	if len(got) != 2 {
		t.Fatalf("candidates: got %d, want 2", len(got))
	}

	if got[0].classID != 0 || got[0].score != 0.9 {
		t.Errorf("first: got class %d score %.2f", got[0].classID, got[0].score)
	}
	// Width doubles from input space to a 200px wide image.
	if got[0].box.Min.X != 80 || got[0].box.Dx() != 40 || got[0].box.Dy() != 40 {
		t.Errorf("first box: got %v", got[0].box)
	}
	if got[1].classID != 2 {
		t.Errorf("second class: got %d, want 2", got[1].classID)
	}

	det := got[0].toDetection(200, 100)
	if det.Label != "person" {
		t.Errorf("label: got %q, want person", det.Label)
	}
	if det.Box.X != 0.4 || det.Box.W != 0.2 {
		t.Errorf("normalized box: got %+v", det.Box)
	}
}

func TestDecodeOutput_ShortTensor(t *testing.T) {
	if got := decodeOutput(make([]float32, 10), 84, 100, DefaultConfig(), 640, 480); got != nil {
		t.Errorf("short tensor: got %d candidates, want none", len(got))
	}
}

func TestCandidate_UnknownClass(t *testing.T) {
	c := candidate{classID: 500}
	if got := c.toDetection(1, 1).Label; got != "unknown" {
		t.Errorf("label: got %q, want unknown", got)
	}
}

func TestRotateFlag(t *testing.T) {
	tests := []struct {
		degrees int
		want    gocv.RotateFlag
		ok      bool
	}{
		{0, 0, false},
		{90, gocv.Rotate90Clockwise, true},
		{180, gocv.Rotate180Clockwise, true},
		{270, gocv.Rotate90CounterClockwise, true},
		{-90, gocv.Rotate90CounterClockwise, true},
		{450, gocv.Rotate90Clockwise, true},
		{45, 0, false},
	}
	for _, tc := range tests {
		got, ok := rotateFlag(tc.degrees)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("rotateFlag(%d): got (%v, %v), want (%v, %v)", tc.degrees, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNew_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "testdata/does-not-exist.onnx"

	_, err := New(cfg)
	if !detection.IsInitError(err) {
		t.Fatalf("New: got %v, want InitError", err)
	}
	if !errors.Is(err, detection.ErrModelNotFound) {
		t.Errorf("New: got %v, want ErrModelNotFound", err)
	}
}

func TestCOCOClasses(t *testing.T) {
	if len(COCOClasses) != 80 {
		t.Errorf("COCOClasses: got %d, want 80", len(COCOClasses))
	}
	if COCOClasses[0] != "person" || COCOClasses[56] != "chair" {
		t.Error("person and chair must keep their COCO indices")
	}
}
