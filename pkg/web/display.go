package web

import (
	"time"

	"github.com/teslashibe/go-lumos/pkg/aggregate"
	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/mode"
)

// Status is the dashboard header: mode, last heard command and counters.
type Status struct {
	Mode          string    `json:"mode"`
	StatusText    string    `json:"status_text"`
	LastCommand   string    `json:"last_command,omitempty"`
	LastCommandAt time.Time `json:"last_command_at,omitzero"`
	Commands      uint64    `json:"commands"`
	Summaries     uint64    `json:"summaries"`
	Overlays      uint64    `json:"overlays"`
	Stats         any       `json:"stats,omitempty"`
}

// SummaryView is the last spoken summary.
type SummaryView struct {
	Seq    uint64            `json:"seq"`
	Text   string            `json:"text"`
	Counts []aggregate.Count `json:"counts"`
	Total  int               `json:"total"`
	Time   time.Time         `json:"time"`
}

// OverlayView is the raw geometry of one frame for box drawing.
type OverlayView struct {
	Seq        uint64                      `json:"seq"`
	Width      int                         `json:"width"`
	Height     int                         `json:"height"`
	Rotation   int                         `json:"rotation"`
	Mode       string                      `json:"mode"`
	Detections []detection.VisionDetection `json:"detections"`
	Time       time.Time                   `json:"time"`
}

// Event is the envelope sent on /ws/detections.
type Event struct {
	Type string `json:"type"` // "summary" or "overlay"
	Data any    `json:"data"`
}

// ShowMode updates the status text after an on/off command.
func (s *Server) ShowMode(t mode.Transition) {
	s.mu.Lock()
	s.status.Mode = t.To.String()
	s.status.StatusText = t.To.StatusText()
	s.status.LastCommand = t.Command.String()
	s.status.LastCommandAt = time.Now()
	s.status.Commands++
	s.mu.Unlock()

	s.broadcastStatus()
}

// ShowSummary records and broadcasts a summary of an active-mode frame.
func (s *Server) ShowSummary(frame detection.Frame, sum aggregate.Summary) {
	view := &SummaryView{
		Seq:    frame.Seq,
		Text:   sum.SpeechText,
		Counts: sum.Counts,
		Total:  sum.Total(),
		Time:   time.Now(),
	}
	if view.Counts == nil {
		view.Counts = []aggregate.Count{}
	}

	s.mu.Lock()
	s.summary = view
	s.status.Summaries++
	s.mu.Unlock()

	s.publish("summary", view)
}

// ShowOverlay broadcasts detection geometry for drawing. It is called for
// every frame in either mode.
func (s *Server) ShowOverlay(frame detection.Frame, dets []detection.VisionDetection, state mode.State) {
	if dets == nil {
		dets = []detection.VisionDetection{}
	}
	view := &OverlayView{
		Seq:        frame.Seq,
		Width:      frame.Width,
		Height:     frame.Height,
		Rotation:   frame.Rotation,
		Mode:       state.String(),
		Detections: dets,
		Time:       time.Now(),
	}

	s.mu.Lock()
	s.overlay = view
	s.status.Overlays++
	s.mu.Unlock()

	s.publish("overlay", view)
}

// CurrentStatus returns a copy of the dashboard status.
func (s *Server) CurrentStatus() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	if s.statsFn != nil {
		st.Stats = s.statsFn()
	}
	return st
}

func (s *Server) broadcastStatus() {
	if err := s.statusHub.BroadcastJSON(s.CurrentStatus()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
}

func (s *Server) publish(kind string, data any) {
	if err := s.detectionsHub.BroadcastJSON(Event{Type: kind, Data: data}); err != nil {
		s.logger.Warn("encode event failed", "type", kind, "error", err)
	}
}
