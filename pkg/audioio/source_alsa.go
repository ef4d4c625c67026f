//go:build linux

package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// ALSASource captures audio by streaming raw PCM16 from arecord.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger
	device string

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newALSASource(cfg Config, logger *slog.Logger) (*ALSASource, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("arecord not found: %w", err)
	}
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return &ALSASource{
		cfg:      cfg,
		logger:   logger,
		device:   device,
		streamCh: make(chan AudioChunk, 10),
	}, nil
}

func pcmArgs(cfg Config, device string) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", strconv.Itoa(cfg.Channels),
		"-D", device,
	}
}

// Start spawns arecord and begins reading chunks.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "arecord", pcmArgs(s.cfg, s.device)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("arecord pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start arecord: %w", err)
	}

	s.running = true
	s.cmd = cmd
	s.cancel = cancel
	s.streamCh = make(chan AudioChunk, 10)

	go s.captureLoop(stdout, s.streamCh)

	s.logger.Info("ALSA audio source started", "device", s.device)
	return nil
}

func (s *ALSASource) captureLoop(r io.Reader, out chan<- AudioChunk) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("ALSA capture read failed", "error", err)
			}
			s.Stop()
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
			s.logger.Debug("ALSA source: buffer full, dropping chunk")
		}
	}
}

// Stop terminates arecord.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	go s.cmd.Wait()

	s.logger.Info("ALSA audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *ALSASource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *ALSASource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ALSASource) Config() Config { return s.cfg }

// Name returns "alsa".
func (s *ALSASource) Name() string { return "alsa" }

// Close releases resources.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "alsa",
	}
}

var _ SourceWithStats = (*ALSASource)(nil)

// ALSASink plays audio by piping raw PCM16 into aplay. Clear kills the
// player so anything buffered in it is dropped; the next Write respawns it.
type ALSASink struct {
	cfg    Config
	logger *slog.Logger
	device string

	mu      sync.Mutex
	running bool
	closed  bool
	ctx     context.Context
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

func newALSASink(cfg Config, logger *slog.Logger) (*ALSASink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("aplay not found: %w", err)
	}
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return &ALSASink{
		cfg:    cfg,
		logger: logger,
		device: device,
	}, nil
}

// Start enables playback. aplay is spawned lazily on the first Write.
func (s *ALSASink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	s.ctx = ctx
	s.logger.Info("ALSA audio sink started", "device", s.device)
	return nil
}

// spawnLocked starts aplay. s.mu must be held.
func (s *ALSASink) spawnLocked() error {
	cmd := exec.CommandContext(s.ctx, "aplay", pcmArgs(s.cfg, s.device)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("aplay pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start aplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// killLocked terminates aplay, discarding its buffer. s.mu must be held.
func (s *ALSASink) killLocked() {
	if s.cmd == nil {
		return
	}
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	go s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
}

// Stop halts audio playback.
func (s *ALSASink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.killLocked()
	return nil
}

// Write sends audio to aplay. It blocks while the player's pipe is full,
// which paces writes to real time.
func (s *ALSASink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.cmd == nil {
		if err := s.spawnLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	w := s.stdin
	s.mu.Unlock()

	if _, err := w.Write(chunk.Bytes()); err != nil {
		return fmt.Errorf("aplay write: %w", err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Clear discards buffered audio immediately.
func (s *ALSASink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.killLocked()
	s.clears.Add(1)
	s.logger.Debug("ALSA sink cleared")
	return nil
}

// Config returns the audio configuration.
func (s *ALSASink) Config() Config { return s.cfg }

// Name returns "alsa".
func (s *ALSASink) Name() string { return "alsa" }

// Close releases resources.
func (s *ALSASink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns sink statistics.
func (s *ALSASink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "alsa",
	}
}

var _ SinkWithStats = (*ALSASink)(nil)
