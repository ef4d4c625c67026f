package emitter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the Async buffer capacity.
const DefaultQueueSize = 64

// Async moves publishing off the caller's goroutine. Publish never blocks:
// when the queue is full the event is dropped and counted.
type Async struct {
	inner   Emitter
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	done   chan struct{}

	dropped  atomic.Uint64
	failures atomic.Uint64
}

// NewAsync starts a publishing goroutine in front of inner.
func NewAsync(inner Emitter, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		inner:   inner,
		logger:  logger.With("component", "emitter"),
		timeout: 5 * time.Second,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish queues ev. The context is not used; each event gets its own
// publish timeout on the worker.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
		a.logger.Warn("emitter queue full, dropping event", "type", ev.Type)
	}
	return nil
}

// Dropped returns how many events were discarded.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failures returns how many publishes failed on the worker.
func (a *Async) Failures() uint64 {
	return a.failures.Load()
}

// Close drains queued events, then closes inner.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.inner.Close()
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.inner.Publish(ctx, ev); err != nil {
			a.failures.Add(1)
			a.logger.Warn("publish failed", "type", ev.Type, "error", err)
		}
		cancel()
	}
}

var _ Emitter = (*Async)(nil)
