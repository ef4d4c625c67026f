// Package emitter publishes mode changes and spoken summaries to external
// consumers over MQTT or Redis pub/sub.
//
// Emitters sit beside the dashboard as another output of the session.
// Publish errors are returned to the caller for logging and counting; they
// never stop the sensor streams.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/teslashibe/go-lumos/pkg/aggregate"
)

// EventType is the kind of published event. It is also the topic suffix.
type EventType string

const (
	EventMode    EventType = "mode"
	EventSummary EventType = "summary"
)

// Event is one published message.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Mode      string            `json:"mode"`
	Command   string            `json:"command,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Counts    []aggregate.Count `json:"counts,omitempty"`
	FrameSeq  uint64            `json:"frame_seq,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JSON encodes the event.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter publishes events.
type Emitter interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"` // Per topic or channel
	Errors    uint64            `json:"errors"`
	Dropped   uint64            `json:"dropped,omitempty"`
}

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("emitter: not connected")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("emitter: closed")

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi publishes to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Emitter = Nop{}
	_ Emitter = Multi(nil)
)
