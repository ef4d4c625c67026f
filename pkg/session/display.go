package session

import (
	"log/slog"

	"github.com/teslashibe/go-lumos/pkg/aggregate"
	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/mode"
)

// Speaker is the speech sink. flush discards pending utterances and
// preempts the current one. It must not block and returns false once
// the sink is closed.
type Speaker interface {
	Speak(text string, flush bool) bool
}

// Display is the UI sink. Methods are called from the stream goroutines
// and must not block.
type Display interface {
	// ShowMode is called for every on/off command, changed or not.
	ShowMode(t mode.Transition)

	// ShowSummary is called for each vision result while active.
	ShowSummary(frame detection.Frame, s aggregate.Summary)

	// ShowOverlay is called for every vision result with the raw geometry
	// and the mode it was evaluated under.
	ShowOverlay(frame detection.Frame, dets []detection.VisionDetection, state mode.State)
}

// Displays fans out to several displays in order.
type Displays []Display

func (ds Displays) ShowMode(t mode.Transition) {
	for _, d := range ds {
		d.ShowMode(t)
	}
}

func (ds Displays) ShowSummary(frame detection.Frame, s aggregate.Summary) {
	for _, d := range ds {
		d.ShowSummary(frame, s)
	}
}

func (ds Displays) ShowOverlay(frame detection.Frame, dets []detection.VisionDetection, state mode.State) {
	for _, d := range ds {
		d.ShowOverlay(frame, dets, state)
	}
}

// LogDisplay writes status changes and summaries to a logger. It is the
// display for headless runs.
type LogDisplay struct {
	Logger *slog.Logger
}

func (l LogDisplay) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LogDisplay) ShowMode(t mode.Transition) {
	l.logger().Info(t.To.StatusText(), "command", t.Command, "changed", t.Changed())
}

func (l LogDisplay) ShowSummary(frame detection.Frame, s aggregate.Summary) {
	l.logger().Info("summary", "seq", frame.Seq, "text", s.SpeechText)
}

func (l LogDisplay) ShowOverlay(frame detection.Frame, dets []detection.VisionDetection, state mode.State) {
	l.logger().Debug("overlay", "seq", frame.Seq, "detections", len(dets), "mode", state)
}

var (
	_ Display = Displays(nil)
	_ Display = LogDisplay{}
)
