// Package dispatch feeds camera frames to the vision adapter with a
// keep-latest backpressure policy.
//
// A Dispatcher owns one worker goroutine and a single-slot mailbox. Submit
// never blocks: a frame submitted while the worker is busy overwrites any
// frame still waiting in the slot, so at most one frame is in flight and at
// most one is pending. Under sustained overload the effective rate degrades
// to the inference latency with bounded memory.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/notify"
)

// Result is one completed vision inference.
type Result struct {
	Frame         detection.Frame
	Detections    []detection.VisionDetection
	InferenceTime time.Duration
}

// Stats contains dispatcher counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"` // Overwritten before the worker picked them up
	Failures  uint64 `json:"failures"`
	LastSeq   uint64 `json:"last_seq"`
	InFlight  bool   `json:"in_flight"`
	Closed    bool   `json:"closed"`
}

// Dispatcher runs the vision detector on the newest submitted frame.
type Dispatcher struct {
	detector detection.VisionDetector
	notifier *notify.Notifier[Result]
	logger   *slog.Logger

	// Mailbox state.
	mu      sync.Mutex
	cond    *sync.Cond
	pending *detection.Frame
	busy    bool
	closed  bool

	// Delivery fence: once closing is set under the write lock, no
	// listener call can start.
	deliverMu sync.RWMutex
	closing   bool

	once     sync.Once
	done     chan struct{}
	closeErr error

	submitted atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
	lastSeq   atomic.Uint64
}

// New creates a dispatcher and starts its worker. Results are delivered
// through n from the worker goroutine.
func New(det detection.VisionDetector, n *notify.Notifier[Result], logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		detector: det,
		notifier: n,
		logger:   logger.With("component", "dispatch"),
		done:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)

	go d.worker()

	return d
}

// Submit hands a frame to the worker without blocking. If the worker is
// busy, frame replaces any frame still waiting. It returns false once
// Shutdown has begun.
func (d *Dispatcher) Submit(frame detection.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	if d.pending != nil {
		d.dropped.Add(1)
	}
	d.pending = &frame
	d.submitted.Add(1)

	d.cond.Signal()
	return true
}

// Shutdown stops accepting frames, discards any pending frame, waits for the
// in-flight inference to finish and releases the detector. No result is
// delivered once Shutdown has begun. Shutdown is idempotent and must not be
// called from the listener.
//
// If ctx expires first, Shutdown returns ctx.Err() and the worker still
// closes the detector when its inference returns.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.deliverMu.Lock()
		d.closing = true
		d.deliverMu.Unlock()

		d.mu.Lock()
		d.closed = true
		if d.pending != nil {
			d.dropped.Add(1)
			d.pending = nil
		}
		d.cond.Broadcast()
		d.mu.Unlock()

		d.logger.Info("dispatcher shutting down")
	})

	select {
	case <-d.done:
		return d.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after the worker exits and the detector is released.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	busy, closed := d.busy, d.closed
	d.mu.Unlock()

	return Stats{
		Submitted: d.submitted.Load(),
		Processed: d.processed.Load(),
		Dropped:   d.dropped.Load(),
		Failures:  d.failures.Load(),
		LastSeq:   d.lastSeq.Load(),
		InFlight:  busy,
		Closed:    closed,
	}
}

// next blocks until a frame is pending or the dispatcher is closed.
func (d *Dispatcher) next() (detection.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.pending == nil && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return detection.Frame{}, false
	}

	frame := *d.pending
	d.pending = nil
	d.busy = true
	return frame, true
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	defer func() {
		if err := d.detector.Close(); err != nil {
			d.closeErr = err
			d.logger.Warn("vision detector close failed", "error", err)
		}
	}()

	for {
		frame, ok := d.next()
		if !ok {
			return
		}

		d.process(frame)

		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}
}

func (d *Dispatcher) process(frame detection.Frame) {
	start := time.Now()
	dets, err := d.detector.Detect(context.Background(), frame)
	elapsed := time.Since(start)

	if err != nil {
		d.failures.Add(1)
		d.logger.Warn("vision inference failed, skipping frame",
			"seq", frame.Seq,
			"error", detection.WrapInference(detection.StreamVision, err),
		)
		return
	}

	d.processed.Add(1)
	d.lastSeq.Store(frame.Seq)

	d.logger.Debug("frame processed",
		"seq", frame.Seq,
		"detections", len(dets),
		"inference_ms", elapsed.Milliseconds(),
	)

	d.deliverMu.RLock()
	defer d.deliverMu.RUnlock()
	if d.closing {
		return
	}
	d.notifier.Notify(Result{
		Frame:         frame,
		Detections:    dets,
		InferenceTime: elapsed,
	})
}
