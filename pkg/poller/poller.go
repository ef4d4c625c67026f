// Package poller drives the audio adapter on a fixed wall-clock cadence.
//
// The first poll runs immediately on Start, then once per interval regardless
// of how long each inference takes. A failed inference skips that tick only;
// the cadence never stops on error.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/notify"
)

// DefaultInterval is the audio polling period.
const DefaultInterval = 500 * time.Millisecond

// Config holds poller configuration.
type Config struct {
	Interval  time.Duration
	Threshold float64 // Command score threshold
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		Threshold: detection.CommandThreshold,
	}
}

// Result is one completed poll.
type Result struct {
	Tick          uint64
	Command       detection.AudioCommand
	Top           detection.RawDetection // Zero when the classifier returned nothing
	Detections    []detection.RawDetection
	InferenceTime time.Duration
	Time          time.Time
}

// Stats contains poller counters.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Delivered uint64 `json:"delivered"`
	Failures  uint64 `json:"failures"`
	Running   bool   `json:"running"`
}

// Poller runs the audio detector periodically and forwards each result to
// its notifier.
type Poller struct {
	detector detection.AudioDetector
	notifier *notify.Notifier[Result]
	cfg      Config
	logger   *slog.Logger

	mu  sync.Mutex
	run *run

	// Serializes Detect across restart boundaries.
	detectMu sync.Mutex

	ticks     atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

// run is one Start..Stop lifetime. Delivery holds mu for reading so that
// once Stop has flipped stopped, no further callback can happen.
type run struct {
	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a poller. Results are delivered through n.
func New(det detection.AudioDetector, n *notify.Notifier[Result], cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = detection.CommandThreshold
	}
	return &Poller{
		detector: det,
		notifier: n,
		cfg:      cfg,
		logger:   logger.With("component", "poller"),
	}
}

// Start begins polling. Calling Start while running has no effect.
// Cancelling ctx stops the poller like Stop.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	p.run = r

	go p.loop(runCtx, r)

	p.logger.Info("audio polling started", "interval", p.cfg.Interval)
}

// Stop cancels future ticks. It does not interrupt an in-flight inference,
// but that inference's result is discarded. After Stop returns the listener
// is never called for this run. Stop is idempotent and must not be called
// from the listener.
func (p *Poller) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()

	if r == nil {
		return
	}

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()

	p.logger.Info("audio polling stopped")
}

// Done returns a channel closed when the current run's goroutine exits, or
// nil when not running.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return nil
	}
	return p.run.done
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Stats returns poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:     p.ticks.Load(),
		Delivered: p.delivered.Load(),
		Failures:  p.failures.Load(),
		Running:   p.Running(),
	}
}

func (p *Poller) loop(ctx context.Context, r *run) {
	defer close(r.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx, r)
	for {
		select {
		case <-ctx.Done():
			// Stop already detached this run; this only covers parent ctx cancel.
			p.detach(r)
			return
		case <-ticker.C:
			p.tick(ctx, r)
		}
	}
}

func (p *Poller) tick(ctx context.Context, r *run) {
	n := p.ticks.Add(1)

	p.detectMu.Lock()
	start := time.Now()
	// Stop must not interrupt an inference already underway.
	dets, err := p.detector.Detect(context.WithoutCancel(ctx))
	elapsed := time.Since(start)
	p.detectMu.Unlock()

	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("audio inference failed, skipping tick",
			"tick", n,
			"error", detection.WrapInference(detection.StreamAudio, err),
		)
		return
	}

	top, _ := detection.Top(dets)
	res := Result{
		Tick:          n,
		Command:       detection.CommandWithThreshold(dets, p.cfg.Threshold),
		Top:           top,
		Detections:    dets,
		InferenceTime: elapsed,
		Time:          time.Now(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return
	}
	if p.notifier.Notify(res) {
		p.delivered.Add(1)
	}
}

func (p *Poller) detach(r *run) {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	p.mu.Lock()
	if p.run == r {
		p.run = nil
	}
	p.mu.Unlock()
}
