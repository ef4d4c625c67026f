package framesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a WebSocket frame source.
type Config struct {
	URL              string        `yaml:"url"`
	Rotation         int           `yaml:"rotation"` // Degrees clockwise applied before inference
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MinBackoff       time.Duration `yaml:"min_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	MaxFrameBytes    int64         `yaml:"max_frame_bytes"`
}

// DefaultConfig returns reconnect and size defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		MaxFrameBytes:    4 << 20,
	}
}

// WebSocket dials a camera streamer and treats every binary message as one
// JPEG frame.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger
	counters
}

// NewWebSocket creates a frame source for cfg.URL.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		cfg:    cfg,
		logger: logger.With("component", "framesource", "url", cfg.URL),
	}
}

// Run connects and reads frames until ctx is cancelled, reconnecting with
// exponential backoff. It returns nil on cancel.
func (w *WebSocket) Run(ctx context.Context, submit SubmitFunc) error {
	if w.cfg.URL == "" {
		return errors.New("framesource: empty URL")
	}

	backoff := w.cfg.MinBackoff
	for {
		connected, err := w.session(ctx, submit)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = w.cfg.MinBackoff
		}
		w.logger.Warn("camera stream lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.cfg.MaxBackoff)
	}
}

// session runs one connection. connected reports whether the dial
// succeeded.
func (w *WebSocket) session(ctx context.Context, submit SubmitFunc) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	w.connects.Add(1)
	w.logger.Info("camera stream connected")
	conn.SetReadLimit(w.cfg.MaxFrameBytes)

	// ReadMessage does not take a context; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if kind != websocket.BinaryMessage {
			w.ignored.Add(1)
			continue
		}

		f, ok := w.frame(data, 0, 0, w.cfg.Rotation)
		if !ok {
			w.ignored.Add(1)
			w.logger.Debug("dropping undecodable frame", "bytes", len(data))
			continue
		}
		w.deliver(submit, f)
	}
}

// Stats returns connection and frame counters.
func (w *WebSocket) Stats() Stats {
	return w.stats()
}
