// Package speech speaks summary text through a TTS provider and an audio
// sink with at most one active utterance.
//
// Speak(text, true) flushes: queued utterances are discarded and the one
// playing stops at the next chunk boundary, after which the sink is cleared.
// Speak(text, false) appends to a small queue that drops its oldest entry
// when full.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/tts"
)

// DefaultQueueSize bounds non-flushing utterances waiting to play.
const DefaultQueueSize = 4

// Stats contains speaker counters.
type Stats struct {
	Spoken    uint64 `json:"spoken"`
	Preempted uint64 `json:"preempted"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
	Queued    int    `json:"queued"`
	Speaking  bool   `json:"speaking"`
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithQueueSize sets the non-flushing queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Speaker) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		if l != nil {
			s.logger = l
		}
	}
}

type utterance struct {
	text string
	gen  uint64
}

// Speaker owns one playback goroutine.
type Speaker struct {
	provider tts.Provider
	sink     audioio.Sink
	logger   *slog.Logger
	capacity int

	ctx      context.Context
	stopCtx  context.CancelFunc
	done     chan struct{}
	closeErr error
	once     sync.Once

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []utterance
	gen      uint64
	cancel   context.CancelFunc // Aborts the in-flight synthesis
	speaking bool
	closed   bool

	// Playback goroutine only.
	dirty    bool
	dirtyGen uint64

	spoken    atomic.Uint64
	preempted atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

// New starts the sink and the playback goroutine.
func New(provider tts.Provider, sink audioio.Sink, opts ...Option) (*Speaker, error) {
	s := &Speaker{
		provider: provider,
		sink:     sink,
		logger:   slog.Default(),
		capacity: DefaultQueueSize,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech")
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.stopCtx = context.WithCancel(context.Background())

	if err := sink.Start(s.ctx); err != nil {
		s.stopCtx()
		return nil, err
	}

	go s.run()
	return s, nil
}

// Speak schedules text. It never blocks and returns false after Close.
func (s *Speaker) Speak(text string, flush bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if flush {
		s.gen++
		s.dropped.Add(uint64(len(s.queue)))
		s.queue = s.queue[:0]
		if s.cancel != nil {
			s.cancel()
		}
	} else if len(s.queue) >= s.capacity {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped.Add(1)
	}

	if text != "" {
		s.queue = append(s.queue, utterance{text: text, gen: s.gen})
		s.cond.Signal()
	}
	return true
}

// Speaking reports whether an utterance is being synthesized or played.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Stats returns speaker counters.
func (s *Speaker) Stats() Stats {
	s.mu.Lock()
	queued, speaking := len(s.queue), s.speaking
	s.mu.Unlock()

	return Stats{
		Spoken:    s.spoken.Load(),
		Preempted: s.preempted.Load(),
		Dropped:   s.dropped.Load(),
		Failures:  s.failures.Load(),
		Queued:    queued,
		Speaking:  speaking,
	}
}

// Close stops playback at the next chunk boundary, discards the queue and
// closes the sink. The provider is left open.
func (s *Speaker) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		if s.cancel != nil {
			s.cancel()
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		<-s.done
		s.stopCtx()
		s.closeErr = s.sink.Close()
	})
	return s.closeErr
}

func (s *Speaker) run() {
	defer close(s.done)

	for {
		u, ctx, ok := s.next()
		if !ok {
			return
		}
		s.play(ctx, u)

		s.mu.Lock()
		s.speaking = false
		s.cancel()
		s.cancel = nil
		s.mu.Unlock()
	}
}

func (s *Speaker) next() (utterance, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return utterance{}, nil, false
	}

	u := s.queue[0]
	copy(s.queue, s.queue[1:])
	s.queue = s.queue[:len(s.queue)-1]

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.speaking = true
	return u, ctx, true
}

func (s *Speaker) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.gen != gen
}

func (s *Speaker) play(ctx context.Context, u utterance) {
	start := time.Now()

	stream, err := s.provider.Stream(ctx, u.text)
	if err != nil {
		if ctx.Err() != nil {
			s.preempted.Add(1)
			return
		}
		s.failures.Add(1)
		s.logger.Warn("speech synthesis failed, skipping", "text", u.text, "error", err)
		return
	}
	defer stream.Close()

	format := stream.Format()
	cfg := s.sink.Config()
	frame := cfg.BufferSize()
	if frame <= 0 {
		frame = 320
	}

	var pending []int16
	for {
		data, err := stream.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.preempted.Add(1)
				return
			}
			s.failures.Add(1)
			s.logger.Warn("speech stream failed", "text", u.text, "error", err)
			return
		}
		if data == nil {
			break
		}

		samples := audioio.BytesToSamples(data)
		if format.SampleRate != 0 && format.SampleRate != cfg.SampleRate {
			samples = audioio.Resample(samples, format.SampleRate, cfg.SampleRate)
		}
		pending = append(pending, samples...)

		for len(pending) >= frame {
			if !s.write(u, pending[:frame], cfg) {
				return
			}
			pending = pending[frame:]
		}
	}
	if len(pending) > 0 && !s.write(u, pending, cfg) {
		return
	}

	s.spoken.Add(1)
	s.logger.Debug("utterance played",
		"text", u.text,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// write plays one chunk. Preemption is only honored here, between chunks.
func (s *Speaker) write(u utterance, samples []int16, cfg audioio.Config) bool {
	if s.stale(u.gen) {
		s.sink.Clear()
		s.dirty = false
		s.preempted.Add(1)
		return false
	}
	if s.dirty && s.dirtyGen != u.gen {
		// Audio from a flushed generation may still be buffered in the sink.
		s.sink.Clear()
	}

	chunk := audioio.AudioChunk{
		Samples:    upmix(samples, cfg.Channels),
		SampleRate: cfg.SampleRate,
		Channels:   max(cfg.Channels, 1),
	}
	if err := s.sink.Write(s.ctx, chunk); err != nil {
		if s.ctx.Err() == nil {
			s.failures.Add(1)
			s.logger.Warn("audio sink write failed", "error", err)
		}
		return false
	}
	s.dirty = true
	s.dirtyGen = u.gen
	return true
}

func upmix(mono []int16, channels int) []int16 {
	if channels <= 1 {
		return mono
	}
	out := make([]int16, len(mono)*channels)
	for i, v := range mono {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	return out
}
