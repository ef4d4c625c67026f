// Package framesource acquires camera frames and hands them to the frame
// dispatcher.
//
// WebSocket reads JPEG frames from a camera streamer and reconnects on its
// own. Replay loops over in-memory frames for dry runs and tests.
package framesource

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // Register JPEG for DecodeConfig
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// SubmitFunc receives each frame. It must not block; it reports whether the
// frame was accepted.
type SubmitFunc func(detection.Frame) bool

// Stats contains frame source counters.
type Stats struct {
	Connects uint64 `json:"connects"`
	Frames   uint64 `json:"frames"`
	Rejected uint64 `json:"rejected"` // Submit returned false
	Ignored  uint64 `json:"ignored"`  // Text or undecodable messages
}

type counters struct {
	seq      atomic.Uint64
	connects atomic.Uint64
	frames   atomic.Uint64
	rejected atomic.Uint64
	ignored  atomic.Uint64
}

func (c *counters) stats() Stats {
	return Stats{
		Connects: c.connects.Load(),
		Frames:   c.frames.Load(),
		Rejected: c.rejected.Load(),
		Ignored:  c.ignored.Load(),
	}
}

// frame builds a Frame with the next sequence number. Zero width or height
// is filled in from the JPEG header; ok is false when the header is invalid.
func (c *counters) frame(data []byte, width, height, rotation int) (detection.Frame, bool) {
	if width <= 0 || height <= 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return detection.Frame{}, false
		}
		width, height = cfg.Width, cfg.Height
	}
	return detection.Frame{
		Seq:       c.seq.Add(1),
		Data:      data,
		Width:     width,
		Height:    height,
		Rotation:  rotation,
		Timestamp: time.Now(),
	}, true
}

func (c *counters) deliver(submit SubmitFunc, f detection.Frame) {
	c.frames.Add(1)
	if !submit(f) {
		c.rejected.Add(1)
	}
}

// Replay submits frames in a loop at a fixed interval until ctx is
// cancelled.
type Replay struct {
	frames   [][]byte
	interval time.Duration
	rotation int
	counters
}

// NewReplay creates a replay source. frames must be JPEG encoded.
func NewReplay(frames [][]byte, interval time.Duration, rotation int) *Replay {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Replay{frames: frames, interval: interval, rotation: rotation}
}

// Run submits frames until ctx is cancelled. It returns nil on cancel.
func (r *Replay) Run(ctx context.Context, submit SubmitFunc) error {
	if len(r.frames) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		data := r.frames[i%len(r.frames)]
		if f, ok := r.frame(data, 0, 0, r.rotation); ok {
			r.deliver(submit, f)
		} else {
			r.ignored.Add(1)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Stats returns replay counters.
func (r *Replay) Stats() Stats {
	return r.stats()
}
