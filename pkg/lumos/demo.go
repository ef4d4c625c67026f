package lumos

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// demoCycle is how many audio ticks the demo spends in each mode.
const demoCycle = 10

// newDemoAudio hears "on" and "off" alternately every demoCycle ticks and
// background noise in between.
func newDemoAudio() *detection.MockAudio {
	var (
		mu   sync.Mutex
		tick int
	)
	m := &detection.MockAudio{}
	m.DetectFunc = func(ctx context.Context) ([]detection.RawDetection, error) {
		mu.Lock()
		defer mu.Unlock()
		n := tick
		tick++
		if n%demoCycle != 0 {
			return []detection.RawDetection{{Label: "_background_noise_", Score: 0.9}}, nil
		}
		label := "on"
		if (n/demoCycle)%2 == 1 {
			label = "off"
		}
		return []detection.RawDetection{{Label: label, Score: 0.95}, {Label: "_unknown_", Score: 0.05}}, nil
	}
	return m
}

// demoScene is what the demo camera always sees.
var demoScene = []detection.VisionDetection{
	{Label: "person", Score: 0.91, Box: detection.BoundingBox{X: 0.10, Y: 0.20, W: 0.25, H: 0.60}},
	{Label: "person", Score: 0.84, Box: detection.BoundingBox{X: 0.55, Y: 0.15, W: 0.22, H: 0.70}},
	{Label: "chair", Score: 0.66, Box: detection.BoundingBox{X: 0.40, Y: 0.55, W: 0.18, H: 0.30}},
}

func newDemoVision() *detection.MockVision {
	m := &detection.MockVision{}
	m.DetectFunc = func(ctx context.Context, frame detection.Frame) ([]detection.VisionDetection, error) {
		out := make([]detection.VisionDetection, len(demoScene))
		copy(out, demoScene)
		return out, nil
	}
	return m
}

// demoFrame renders a small gradient JPEG for the replay source.
func demoFrame() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) / 3)})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
