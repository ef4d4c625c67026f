// Package session wires the audio and vision streams to the mode gate and
// the output sinks.
//
// The audio stream runs on the poller's goroutine and only writes the gate.
// The vision stream runs on the dispatcher's worker, reads the gate once per
// result, and only aggregates and speaks while the gate is active. The two
// streams share nothing else.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-lumos/pkg/aggregate"
	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/dispatch"
	"github.com/teslashibe/go-lumos/pkg/emitter"
	"github.com/teslashibe/go-lumos/pkg/mode"
	"github.com/teslashibe/go-lumos/pkg/notify"
	"github.com/teslashibe/go-lumos/pkg/poller"
)

// ErrNoStreams is returned by New when neither factory is set.
var ErrNoStreams = errors.New("session: no audio or vision factory")

// ErrNotStarted is returned by Resume before Start.
var ErrNotStarted = errors.New("session: not started")

// Options configures a Session. Nil sinks are skipped.
type Options struct {
	ID      string // Generated when empty
	Audio   detection.AudioFactory
	Vision  detection.VisionFactory
	Poller  poller.Config
	Gate    *mode.Gate
	Speaker Speaker
	Display Display
	Emitter emitter.Emitter
	Logger  *slog.Logger
}

// Stats is a snapshot of both streams.
type Stats struct {
	SessionID   string         `json:"session_id"`
	Mode        string         `json:"mode"`
	AudioReady  bool           `json:"audio_ready"`
	VisionReady bool           `json:"vision_ready"`
	Audio       poller.Stats   `json:"audio"`
	Vision      dispatch.Stats `json:"vision"`
	Commands    uint64         `json:"commands"`
	Summaries   uint64         `json:"summaries"`
	Overlays    uint64         `json:"overlays"`
	Uptime      string         `json:"uptime,omitempty"`
}

// Session owns the adapters for one run.
type Session struct {
	id      string
	opts    Options
	gate    *mode.Gate
	emitter emitter.Emitter
	logger  *slog.Logger

	audioN  *notify.Notifier[poller.Result]
	visionN *notify.Notifier[dispatch.Result]

	mu         sync.Mutex
	ctx        context.Context
	started    time.Time
	stopped    bool
	audio      detection.AudioDetector
	poller     *poller.Poller
	pausedDone <-chan struct{} // Run stopped by the last Pause
	dispatcher *dispatch.Dispatcher

	stopOnce sync.Once
	stopErr  error

	commands  atomic.Uint64
	summaries atomic.Uint64
	overlays  atomic.Uint64
}

// New creates a session. Adapters are not created until Start.
func New(opts Options) (*Session, error) {
	if opts.Audio == nil && opts.Vision == nil {
		return nil, ErrNoStreams
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Gate == nil {
		opts.Gate = mode.New()
	}
	if opts.Emitter == nil {
		opts.Emitter = emitter.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:      opts.ID,
		opts:    opts,
		gate:    opts.Gate,
		emitter: opts.Emitter,
		logger:  opts.Logger.With("component", "session", "session_id", opts.ID),
	}
	s.audioN = notify.New(s.onAudio)
	s.visionN = notify.New(s.onVision)
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Gate returns the session's mode gate.
func (s *Session) Gate() *mode.Gate {
	return s.gate
}

// Start creates both adapters independently and starts the streams whose
// adapter came up. The returned error joins the InitError of each stream
// that failed; the other stream keeps running. Calling Start twice is an
// error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil || s.stopped {
		return errors.New("session: already started")
	}
	s.ctx = ctx
	s.started = time.Now()

	var errs []error

	if s.opts.Audio != nil {
		audio, err := s.opts.Audio()
		if err != nil {
			errs = append(errs, initError(detection.StreamAudio, err))
		} else {
			s.audio = audio
			s.poller = poller.New(audio, s.audioN, s.opts.Poller, s.logger)
			s.poller.Start(ctx)
		}
	}

	if s.opts.Vision != nil {
		vision, err := s.opts.Vision()
		if err != nil {
			errs = append(errs, initError(detection.StreamVision, err))
		} else {
			s.dispatcher = dispatch.New(vision, s.visionN, s.logger)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("stream failed to start", "error", err)
	}
	s.logger.Info("session started",
		"audio", s.poller != nil,
		"vision", s.dispatcher != nil,
		"mode", s.gate.Load(),
	)
	return err
}

func initError(stream string, err error) error {
	if detection.IsInitError(err) {
		return err
	}
	return detection.WrapInit(stream, err)
}

// Submit hands a camera frame to the vision stream. It never blocks and
// returns false when the vision stream is not running.
func (s *Session) Submit(frame detection.Frame) bool {
	s.mu.Lock()
	d := s.dispatcher
	s.mu.Unlock()

	if d == nil {
		return false
	}
	return d.Submit(frame)
}

// Pause stops audio polling. The gate keeps its value.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poller == nil {
		return
	}
	if done := s.poller.Done(); done != nil {
		s.pausedDone = done
	}
	s.poller.Stop()
}

// Resume restarts audio polling with an immediate first tick.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return ErrNotStarted
	}
	if s.stopped || s.poller == nil {
		return nil
	}
	s.poller.Start(s.ctx)
	return nil
}

// Stop halts both streams and releases the adapters exactly once. No sink
// is called after Stop returns. It must not be called from a sink.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		p, d, audio, paused := s.poller, s.dispatcher, s.audio, s.pausedDone
		s.mu.Unlock()

		var errs []error

		if p != nil {
			done := p.Done()
			p.Stop()
			// The audio adapter is closed only after any in-flight tick returns.
			for _, ch := range []<-chan struct{}{done, paused} {
				if ch == nil {
					continue
				}
				select {
				case <-ch:
				case <-ctx.Done():
					errs = append(errs, fmt.Errorf("audio stream: %w", ctx.Err()))
				}
			}
		}
		if audio != nil {
			if err := audio.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close audio adapter: %w", err))
			}
		}

		if d != nil {
			if err := d.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("vision stream: %w", err))
			}
		}

		s.audioN.Detach()
		s.visionN.Detach()

		s.stopErr = errors.Join(errs...)
		s.logger.Info("session stopped", "error", s.stopErr)
	})
	return s.stopErr
}

// Stats returns a snapshot of both streams.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	p, d, started := s.poller, s.dispatcher, s.started
	s.mu.Unlock()

	st := Stats{
		SessionID:   s.id,
		Mode:        s.gate.Load().String(),
		AudioReady:  p != nil,
		VisionReady: d != nil,
		Commands:    s.commands.Load(),
		Summaries:   s.summaries.Load(),
		Overlays:    s.overlays.Load(),
	}
	if p != nil {
		st.Audio = p.Stats()
	}
	if d != nil {
		st.Vision = d.Stats()
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Truncate(time.Second).String()
	}
	return st
}

// onAudio runs on the poller goroutine.
func (s *Session) onAudio(res poller.Result) {
	if res.Command == detection.CommandNone {
		return
	}

	t := s.gate.Apply(res.Command)
	s.commands.Add(1)

	s.logger.Info(t.To.StatusText(),
		"label", res.Top.Label,
		"score", res.Top.Score,
		"changed", t.Changed(),
	)

	if s.opts.Display != nil {
		s.opts.Display.ShowMode(t)
	}
	s.publish(emitter.Event{
		Type:    emitter.EventMode,
		Mode:    t.To.String(),
		Command: t.Command.String(),
	})
}

// onVision runs on the dispatcher worker.
func (s *Session) onVision(res dispatch.Result) {
	state := s.gate.Load()

	if state == mode.Active {
		sum := aggregate.Aggregate(res.Detections)
		s.summaries.Add(1)

		if s.opts.Speaker != nil && !s.opts.Speaker.Speak(sum.SpeechText, true) {
			s.logger.Debug("speaker closed, summary not spoken", "seq", res.Frame.Seq)
		}
		if s.opts.Display != nil {
			s.opts.Display.ShowSummary(res.Frame, sum)
		}
		s.publish(emitter.Event{
			Type:     emitter.EventSummary,
			Mode:     state.String(),
			Summary:  sum.SpeechText,
			Counts:   sum.Counts,
			FrameSeq: res.Frame.Seq,
		})
	}

	s.overlays.Add(1)
	if s.opts.Display != nil {
		s.opts.Display.ShowOverlay(res.Frame, res.Detections, state)
	}
}

func (s *Session) publish(ev emitter.Event) {
	ev.SessionID = s.id
	ev.Timestamp = time.Now()
	if err := s.emitter.Publish(s.ctx, ev); err != nil {
		s.logger.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}
