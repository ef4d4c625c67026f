package speech_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/speech"
	"github.com/teslashibe/go-lumos/pkg/tts"
)

func newSink(delay time.Duration) *audioio.MockSink {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	sink := audioio.NewMockSink(cfg, nil)
	sink.WriteDelay = delay
	return sink
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSpeaker_PlaysInSinkChunks(t *testing.T) {
	sink := newSink(0)
	sp, err := speech.New(tts.NewMock(), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sp.Close()

	// 3 chars * 20ms = 60ms at 16kHz = 3 sink chunks of 320 samples.
	sp.Speak("abc", true)
	waitFor(t, "utterance", func() bool { return sp.Stats().Spoken == 1 })

	written := sink.Written()
	if len(written) != 3 {
		t.Fatalf("chunks: got %d, want 3", len(written))
	}
	for i, c := range written {
		if len(c.Samples) != 320 {
			t.Errorf("chunk %d: got %d samples, want 320", i, len(c.Samples))
		}
	}
}

func TestSpeaker_ResamplesToSink(t *testing.T) {
	provider := tts.NewMock()
	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		// 480 samples at 24kHz = 20ms.
		return &tts.AudioResult{Audio: make([]byte, 960), Format: tts.FormatFor(tts.EncodingPCM24)}, nil
	}

	sink := newSink(0)
	sp, _ := speech.New(provider, sink)
	defer sp.Close()

	sp.Speak("x", false)
	waitFor(t, "utterance", func() bool { return sp.Stats().Spoken == 1 })

	if got := sink.Stats().SamplesWritten; got != 320 {
		t.Errorf("samples written: got %d, want 320 after 24k to 16k", got)
	}
}

func TestSpeaker_FlushPreemptsAtChunkBoundary(t *testing.T) {
	sink := newSink(5 * time.Millisecond)
	provider := tts.NewMock()
	sp, _ := speech.New(provider, sink)
	defer sp.Close()

	long := string(make([]byte, 100)) // 100 chunks, ~500ms
	sp.Speak(long, true)
	waitFor(t, "playback to start", func() bool { return sink.Stats().ChunksWritten >= 2 })

	sp.Speak("1 person.", true)
	waitFor(t, "second utterance", func() bool { return sp.Stats().Spoken == 1 })

	stats := sp.Stats()
	if stats.Preempted != 1 {
		t.Errorf("Preempted: got %d, want 1", stats.Preempted)
	}
	if sink.Stats().Clears < 1 {
		t.Error("sink should be cleared on preemption")
	}
	if got := sink.Stats().ChunksWritten; got >= 100 {
		t.Errorf("long utterance played to completion (%d chunks)", got)
	}
	for _, c := range sink.Written() {
		if len(c.Samples) != 320 {
			t.Fatalf("partial chunk of %d samples written", len(c.Samples))
		}
	}
}

func TestSpeaker_QueueDropsOldest(t *testing.T) {
	release := make(chan struct{})
	provider := tts.NewMock()
	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		if text == "u0" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return tts.SilenceResult(text, time.Millisecond), nil
	}

	sp, _ := speech.New(provider, newSink(0), speech.WithQueueSize(4))
	defer sp.Close()

	sp.Speak("u0", false)
	waitFor(t, "u0 in flight", sp.Speaking)
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		if !sp.Speak(u, false) {
			t.Fatalf("Speak(%s) returned false", u)
		}
	}
	if stats := sp.Stats(); stats.Queued != 4 || stats.Dropped != 1 {
		t.Errorf("queue: got queued=%d dropped=%d, want 4 and 1", stats.Queued, stats.Dropped)
	}

	close(release)
	waitFor(t, "queue drained", func() bool { return sp.Stats().Spoken == 5 })

	got := provider.Texts("Stream")
	want := []string{"u0", "u2", "u3", "u4", "u5"}
	if len(got) != len(want) {
		t.Fatalf("spoken: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("spoken[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSpeaker_FlushDiscardsQueue(t *testing.T) {
	release := make(chan struct{})
	provider := tts.NewMock()
	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		if text == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return tts.SilenceResult(text, time.Millisecond), nil
	}

	sp, _ := speech.New(provider, newSink(0))
	defer sp.Close()
	defer close(release)

	sp.Speak("slow", false)
	waitFor(t, "slow in flight", sp.Speaking)
	sp.Speak("queued-1", false)
	sp.Speak("queued-2", false)
	sp.Speak("latest", true)

	waitFor(t, "latest spoken", func() bool { return sp.Stats().Spoken == 1 })

	for _, text := range provider.Texts("Stream") {
		if text == "queued-1" || text == "queued-2" {
			t.Errorf("%s should have been flushed", text)
		}
	}
	stats := sp.Stats()
	if stats.Dropped != 2 {
		t.Errorf("Dropped: got %d, want 2", stats.Dropped)
	}
	if stats.Preempted != 1 {
		t.Errorf("Preempted: got %d, want 1 (in-flight synthesis cancelled)", stats.Preempted)
	}
}

func TestSpeaker_SynthesisFailureSkipped(t *testing.T) {
	provider := tts.NewMock()
	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		if text == "bad" {
			return nil, errors.New("quota exceeded")
		}
		return tts.SilenceResult(text, time.Millisecond), nil
	}

	sp, _ := speech.New(provider, newSink(0))
	defer sp.Close()

	sp.Speak("bad", false)
	sp.Speak("good", false)
	waitFor(t, "good spoken", func() bool { return sp.Stats().Spoken == 1 })

	if sp.Stats().Failures != 1 {
		t.Errorf("Failures: got %d, want 1", sp.Stats().Failures)
	}
}

func TestSpeaker_Close(t *testing.T) {
	sink := newSink(5 * time.Millisecond)
	sp, _ := speech.New(tts.NewMock(), sink)

	sp.Speak(string(make([]byte, 100)), true)
	waitFor(t, "playback", func() bool { return sink.Stats().ChunksWritten >= 1 })

	start := time.Now()
	if err := sp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Close took %v, should stop at the next chunk", elapsed)
	}
	if sp.Speak("after", true) {
		t.Error("Speak after Close should return false")
	}
	if err := sp.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if sink.Stats().Running {
		t.Error("sink should be stopped")
	}
}
