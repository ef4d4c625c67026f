package audioio

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"
)

// Window is a fixed-length ring of the most recent mono samples,
// normalized to [-1, 1]. It is safe for one writer and many readers.
type Window struct {
	mu         sync.Mutex
	buf        []float32
	pos        int
	filled     int
	sampleRate int
	total      uint64
}

// NewWindow creates a window holding duration of audio at sampleRate.
func NewWindow(sampleRate int, duration time.Duration) *Window {
	n := int(float64(sampleRate) * duration.Seconds())
	if n < 1 {
		n = 1
	}
	return &Window{
		buf:        make([]float32, n),
		sampleRate: sampleRate,
	}
}

// Len returns the window capacity in samples.
func (w *Window) Len() int { return len(w.buf) }

// SampleRate returns the rate samples are expected at.
func (w *Window) SampleRate() int { return w.sampleRate }

// Write appends a chunk, downmixing and resampling it to the window rate.
func (w *Window) Write(chunk AudioChunk) {
	samples := chunk.Mono()
	if chunk.SampleRate != 0 && chunk.SampleRate != w.sampleRate {
		samples = Resample(samples, chunk.SampleRate, w.sampleRate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range samples {
		w.buf[w.pos] = float32(s) / 32768
		w.pos = (w.pos + 1) % len(w.buf)
	}
	w.filled = min(w.filled+len(samples), len(w.buf))
	w.total += uint64(len(samples))
}

// Snapshot returns the window contents oldest first. Until the window has
// filled, the leading samples are zero.
func (w *Window) Snapshot() []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float32, len(w.buf))
	n := copy(out, w.buf[w.pos:])
	copy(out[n:], w.buf[:w.pos])
	return out
}

// Filled reports whether a full window of audio has been captured.
func (w *Window) Filled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled == len(w.buf)
}

// Total returns the number of samples written since creation.
func (w *Window) Total() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Pump copies chunks from src into the window until ctx is cancelled or the
// source ends. A source that ends cleanly returns nil.
func (w *Window) Pump(ctx context.Context, src Source) error {
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		w.Write(chunk)
	}
}

// RMS returns the root mean square of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
