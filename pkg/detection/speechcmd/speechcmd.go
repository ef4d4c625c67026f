// Package speechcmd is an audio adapter that classifies the most recent
// second of microphone audio with a speech-commands ONNX model.
//
// The model is expected to take a [1, N] float32 waveform normalized to
// [-1, 1] and emit one score per label. The adapter reads whatever the
// audioio.Window holds at call time, so Detect never waits for audio.
package speechcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/detection"
)

// DefaultLabels is the label set of the stock speech-commands model.
var DefaultLabels = []string{
	"_silence_", "_unknown_", "yes", "no", "up", "down",
	"left", "right", "on", "off", "stop", "go",
}

// Config holds speech command classifier configuration.
type Config struct {
	ModelPath  string `yaml:"model_path"`
	LabelsPath string `yaml:"labels_path"` // One label per line; empty uses DefaultLabels
	MaxResults int    `yaml:"max_results"`

	// Softmax normalizes raw logits. Disable for models with a softmax head.
	Softmax bool `yaml:"softmax"`
}

// DefaultConfig returns defaults matching the stock model.
func DefaultConfig() Config {
	return Config{
		ModelPath:  "models/speech_commands.onnx",
		MaxResults: 5,
		Softmax:    true,
	}
}

// Detector classifies the latest audio window.
type Detector struct {
	cfg    Config
	labels []string
	window *audioio.Window

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// New loads the model and labels. window supplies the audio; it is usually
// fed by audioio.Window.Pump from a running Source.
func New(cfg Config, window *audioio.Window) (*Detector, error) {
	if window == nil {
		return nil, detection.WrapInit(detection.StreamAudio, errors.New("nil audio window"))
	}

	labels := DefaultLabels
	if cfg.LabelsPath != "" {
		var err error
		if labels, err = LoadLabels(cfg.LabelsPath); err != nil {
			return nil, detection.WrapInit(detection.StreamAudio, err)
		}
	}

	if _, err := os.Stat(cfg.ModelPath); errors.Is(err, os.ErrNotExist) {
		return nil, detection.WrapInit(detection.StreamAudio,
			fmt.Errorf("%w: %s", detection.ErrModelNotFound, cfg.ModelPath))
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, detection.WrapInit(detection.StreamAudio,
			fmt.Errorf("failed to load speech model from %s", cfg.ModelPath))
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}

	return &Detector{
		cfg:    cfg,
		labels: labels,
		window: window,
		net:    net,
	}, nil
}

// Factory returns an AudioFactory bound to window.
func Factory(cfg Config, window *audioio.Window) detection.AudioFactory {
	return func() (detection.AudioDetector, error) {
		d, err := New(cfg, window)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Detect runs one inference over the current window contents.
func (d *Detector) Detect(ctx context.Context) ([]detection.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, detection.ErrClosed
	}

	samples := d.window.Snapshot()

	input := gocv.NewMatWithSize(1, len(samples), gocv.MatTypeCV32F)
	defer input.Close()
	for i, s := range samples {
		input.SetFloatAt(0, i, s)
	}

	d.net.SetInput(input, "")
	output := d.net.Forward("")
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(scores) != len(d.labels) {
		return nil, fmt.Errorf("model emitted %d scores for %d labels", len(scores), len(d.labels))
	}

	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = float64(s)
	}
	if d.cfg.Softmax {
		softmax(probs)
	}

	return topK(d.labels, probs, d.cfg.MaxResults), nil
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

var _ detection.AudioDetector = (*Detector)(nil)

// LoadLabels reads one label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels in %s", path)
	}
	return labels, nil
}

func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	maxV := v[0]
	for _, x := range v[1:] {
		maxV = math.Max(maxV, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// topK returns the k best labels by descending score. Equal scores keep
// label order.
func topK(labels []string, scores []float64, k int) []detection.RawDetection {
	out := make([]detection.RawDetection, len(labels))
	for i, l := range labels {
		out[i] = detection.RawDetection{Label: l, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
