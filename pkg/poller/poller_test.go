package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/notify"
	"github.com/teslashibe/go-lumos/pkg/poller"
)

const interval = 40 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	results []poller.Result
}

func (r *recorder) listen(res poller.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) snapshot() []poller.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]poller.Result, len(r.results))
	copy(out, r.results)
	return out
}

func newPoller(det detection.AudioDetector, rec *recorder) *poller.Poller {
	cfg := poller.DefaultConfig()
	cfg.Interval = interval
	return poller.New(det, notify.New(rec.listen), cfg, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPoller_ImmediateFirstTick(t *testing.T) {
	det := detection.NewMockAudio([][]detection.RawDetection{{{Label: "on", Score: 0.9}}})
	rec := &recorder{}
	p := newPoller(det, rec)

	start := time.Now()
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return rec.len() >= 1 })
	if elapsed := time.Since(start); elapsed >= interval {
		t.Errorf("first tick after %v, expected before %v", elapsed, interval)
	}

	got := rec.snapshot()[0]
	if got.Command != detection.CommandOn {
		t.Errorf("Command: got %v, want on", got.Command)
	}
	if got.Top.Label != "on" {
		t.Errorf("Top: got %q, want on", got.Top.Label)
	}
}

func TestPoller_ForwardsNone(t *testing.T) {
	det := detection.NewMockAudio([][]detection.RawDetection{{{Label: "yes", Score: 0.99}}})
	rec := &recorder{}
	p := newPoller(det, rec)

	p.Start(context.Background())
	waitFor(t, time.Second, func() bool { return rec.len() >= 2 })
	p.Stop()

	for _, r := range rec.snapshot() {
		if r.Command != detection.CommandNone {
			t.Errorf("tick %d: got %v, want none", r.Tick, r.Command)
		}
	}
}

func TestPoller_StartIdempotent(t *testing.T) {
	det := detection.NewMockAudio(nil)
	rec := &recorder{}
	p := newPoller(det, rec)

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx)
	p.Start(ctx)

	time.Sleep(5*interval + interval/2)
	p.Stop()

	// One timer gives ~6 calls; three would give ~18.
	if n := len(det.Calls()); n > 8 {
		t.Errorf("Detect called %d times, expected a single cadence (<= 8)", n)
	}
}

func TestPoller_ResilientToErrors(t *testing.T) {
	glitch := errors.New("mic glitch")
	det := detection.NewMockAudio(
		[][]detection.RawDetection{{{Label: "on", Score: 0.9}}},
		nil, glitch, glitch, nil,
	)
	rec := &recorder{}
	p := newPoller(det, rec)

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return len(det.Calls()) >= 5 })
	p.Stop()

	calls := det.Calls()
	for i := 1; i < 5; i++ {
		gap := calls[i].Time.Sub(calls[i-1].Time)
		if gap > 2*interval {
			t.Errorf("gap between tick %d and %d is %v, cadence broken", i-1, i, gap)
		}
	}

	stats := p.Stats()
	if stats.Failures != 2 {
		t.Errorf("Failures: got %d, want 2", stats.Failures)
	}
	// Failed ticks are skipped, not delivered.
	for _, r := range rec.snapshot() {
		if r.Tick == 2 || r.Tick == 3 {
			t.Errorf("tick %d failed but was delivered", r.Tick)
		}
	}
}

func TestPoller_NoCallbackAfterStop(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	det := &detection.MockAudio{
		DetectFunc: func(ctx context.Context) ([]detection.RawDetection, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return []detection.RawDetection{{Label: "on", Score: 0.9}}, nil
		},
	}

	var after atomic.Int32
	var stopped atomic.Bool
	n := notify.New(func(poller.Result) {
		if stopped.Load() {
			after.Add(1)
		}
	})
	cfg := poller.DefaultConfig()
	cfg.Interval = interval
	p := poller.New(det, n, cfg, nil)

	p.Start(context.Background())
	<-entered

	p.Stop()
	stopped.Store(true)
	close(release)

	time.Sleep(3 * interval)
	if after.Load() != 0 {
		t.Errorf("listener called %d times after Stop", after.Load())
	}
	if p.Running() {
		t.Error("Running should be false after Stop")
	}
}

func TestPoller_StopIdempotent(t *testing.T) {
	p := newPoller(detection.NewMockAudio(nil), &recorder{})
	p.Stop()
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestPoller_RestartAfterStop(t *testing.T) {
	det := detection.NewMockAudio([][]detection.RawDetection{{{Label: "off", Score: 0.9}}})
	rec := &recorder{}
	p := newPoller(det, rec)

	ctx := context.Background()
	p.Start(ctx)
	waitFor(t, time.Second, func() bool { return rec.len() >= 1 })
	p.Stop()

	before := rec.len()
	p.Start(ctx)
	defer p.Stop()
	waitFor(t, time.Second, func() bool { return rec.len() > before })
}

func TestPoller_ContextCancelStops(t *testing.T) {
	p := newPoller(detection.NewMockAudio(nil), &recorder{})
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	done := p.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not exit after context cancel")
	}
	waitFor(t, time.Second, func() bool { return !p.Running() })
}
