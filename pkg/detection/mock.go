package detection

import (
	"context"
	"sync"
	"time"
)

// MockCall records a Detect invocation for verification.
type MockCall struct {
	Frame Frame // Zero for audio calls
	Time  time.Time
}

// MockAudio implements AudioDetector for testing.
type MockAudio struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, returns no detections.
	DetectFunc func(ctx context.Context) ([]RawDetection, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu     sync.Mutex
	calls  []MockCall
	closed int
}

// NewMockAudio creates a mock that replays results in order, then repeats
// the last one. A nil entry in errs means no error for that call.
func NewMockAudio(results [][]RawDetection, errs ...error) *MockAudio {
	m := &MockAudio{}
	var (
		mu sync.Mutex
		i  int
	)
	m.DetectFunc = func(ctx context.Context) ([]RawDetection, error) {
		mu.Lock()
		defer mu.Unlock()
		idx := i
		i++
		var err error
		if idx < len(errs) {
			err = errs[idx]
		}
		if len(results) == 0 {
			return nil, err
		}
		if idx >= len(results) {
			idx = len(results) - 1
		}
		return results[idx], err
	}
	return m
}

// Detect calls DetectFunc and records the call.
func (m *MockAudio) Detect(ctx context.Context) ([]RawDetection, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Time: time.Now()})
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx)
	}
	return nil, nil
}

// Close calls CloseFunc and counts the call.
func (m *MockAudio) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns all recorded Detect calls.
func (m *MockAudio) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CloseCount returns how many times Close was called.
func (m *MockAudio) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockVision implements VisionDetector for testing.
type MockVision struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, returns no detections.
	DetectFunc func(ctx context.Context, frame Frame) ([]VisionDetection, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu     sync.Mutex
	calls  []MockCall
	closed int
}

// Detect calls DetectFunc and records the call.
func (m *MockVision) Detect(ctx context.Context, frame Frame) ([]VisionDetection, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Frame: frame, Time: time.Now()})
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, frame)
	}
	return nil, nil
}

// Close calls CloseFunc and counts the call.
func (m *MockVision) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns all recorded Detect calls.
func (m *MockVision) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Detect calls.
func (m *MockVision) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CloseCount returns how many times Close was called.
func (m *MockVision) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify mocks implement the adapter interfaces at compile time.
var (
	_ AudioDetector  = (*MockAudio)(nil)
	_ VisionDetector = (*MockVision)(nil)
)
