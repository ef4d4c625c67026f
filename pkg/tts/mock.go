package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for tests and dry runs. Behavior is customized
// through the function fields; every call is recorded.
type Mock struct {
	// SynthesizeFunc backs Synthesize and, when StreamFunc is nil, Stream.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	StreamFunc     func(ctx context.Context, text string) (AudioStream, error)
	HealthFunc     func(ctx context.Context) error
	CloseFunc      func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a mock that synthesizes 20ms of 16kHz silence per
// character, roughly natural speech pacing.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return SilenceResult(text, 20*time.Millisecond), nil
		},
	}
}

// SilenceResult builds a 16kHz PCM16 result of perChar silence per
// character of text.
func SilenceResult(text string, perChar time.Duration) *AudioResult {
	format := FormatFor(EncodingPCM16)
	samples := int(float64(format.SampleRate)*perChar.Seconds()) * len(text)
	return &AudioResult{
		Audio:     make([]byte, samples*2),
		Format:    format,
		CharCount: len(text),
		Duration:  time.Duration(len(text)) * perChar,
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.recordCall("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Stream calls StreamFunc, or wraps SynthesizeFunc's buffer as a stream.
func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.recordCall("Stream", text)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, text)
	}
	if m.SynthesizeFunc != nil {
		result, err := m.SynthesizeFunc(ctx, text)
		if err != nil {
			return nil, err
		}
		return &bufferStream{data: result.Audio, format: result.Format}, nil
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Texts returns the text of every call to method, in order.
func (m *Mock) Texts(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c.Text)
		}
	}
	return out
}

// CallCount returns the number of calls to method.
func (m *Mock) CallCount(method string) int {
	return len(m.Texts(method))
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose every method fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		StreamFunc:     func(context.Context, string) (AudioStream, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency delays m's synthesis by delay, honoring cancellation.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	inner := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if inner != nil {
			return inner(ctx, text)
		}
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m
}

var _ Provider = (*Mock)(nil)
