// Package detection defines the adapter boundary around the audio and vision
// classifiers.
//
// An adapter wraps one opaque inference engine behind a uniform Detect/Close
// contract. Two adapters exist per session: an AudioDetector polled on a fixed
// cadence, and a VisionDetector fed from the camera stream. Backends live in
// subpackages (yolo, speechcmd) so this package stays free of cgo.
package detection

import (
	"context"
	"image"
	"time"
)

// Stream names used in errors and logs.
const (
	StreamAudio  = "audio"
	StreamVision = "vision"
)

// RawDetection is one (label, score) pair produced by a single inference call.
type RawDetection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// BoundingBox is normalized (0-1) box geometry. The core passes it through to
// the display untouched.
type BoundingBox struct {
	X float64 `json:"x"` // Top-left corner
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the area of the box.
func (b BoundingBox) Area() float64 {
	return b.W * b.H
}

// VisionDetection is one detected object in a camera frame.
type VisionDetection struct {
	Label string      `json:"label"`
	Score float64     `json:"score"`
	Box   BoundingBox `json:"box"`
}

// Frame is a single camera frame handed to the vision adapter.
// Data must not be modified after Submit.
type Frame struct {
	Seq       uint64
	Data      []byte // JPEG
	Width     int
	Height    int
	Rotation  int // Degrees clockwise, 0/90/180/270
	Timestamp time.Time
}

// Size returns the frame dimensions as a point.
func (f Frame) Size() image.Point {
	return image.Pt(f.Width, f.Height)
}

// AudioDetector classifies the most recent audio window.
type AudioDetector interface {
	// Detect runs one inference over the latest captured audio.
	// An empty result is not an error.
	Detect(ctx context.Context) ([]RawDetection, error)

	// Close releases model resources.
	Close() error
}

// VisionDetector detects objects in a frame.
type VisionDetector interface {
	// Detect runs one inference over the frame.
	// It may be called back-to-back with no minimum spacing.
	Detect(ctx context.Context, frame Frame) ([]VisionDetection, error)

	// Close releases model resources.
	Close() error
}

// AudioFactory creates an audio adapter at session start.
type AudioFactory func() (AudioDetector, error)

// VisionFactory creates a vision adapter at session start.
type VisionFactory func() (VisionDetector, error)
