package detection

import (
	"context"
	"errors"
	"testing"
)

func TestCommandFrom(t *testing.T) {
	tests := []struct {
		name string
		dets []RawDetection
		want AudioCommand
	}{
		{name: "empty", dets: nil, want: CommandNone},
		{name: "on above threshold", dets: []RawDetection{{"on", 0.9}, {"off", 0.05}}, want: CommandOn},
		{name: "off above threshold", dets: []RawDetection{{"yes", 0.1}, {"off", 0.8}}, want: CommandOff},
		{name: "on at threshold", dets: []RawDetection{{"on", 0.7}}, want: CommandNone},
		{name: "on below threshold", dets: []RawDetection{{"on", 0.5}}, want: CommandNone},
		{name: "other label wins", dets: []RawDetection{{"on", 0.3}, {"go", 0.95}}, want: CommandNone},
		{name: "case sensitive", dets: []RawDetection{{"ON", 0.99}}, want: CommandNone},
		{name: "tie keeps first seen", dets: []RawDetection{{"off", 0.8}, {"on", 0.8}}, want: CommandOff},
		{name: "tie keeps first seen reversed", dets: []RawDetection{{"on", 0.8}, {"off", 0.8}}, want: CommandOn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommandFrom(tc.dets); got != tc.want {
				t.Errorf("CommandFrom: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTop(t *testing.T) {
	if _, ok := Top(nil); ok {
		t.Error("Top(nil): expected ok=false")
	}

	best, ok := Top([]RawDetection{{"a", 0.2}, {"b", 0.6}, {"c", 0.6}, {"d", 0.1}})
	if !ok {
		t.Fatal("Top: expected ok=true")
	}
	if best.Label != "b" {
		t.Errorf("Top: got %q, want %q", best.Label, "b")
	}
}

func TestAudioCommand_String(t *testing.T) {
	tests := map[AudioCommand]string{
		CommandNone: "none",
		CommandOn:   "on",
		CommandOff:  "off",
	}
	for cmd, want := range tests {
		if got := cmd.String(); got != want {
			t.Errorf("String(%d): got %q, want %q", cmd, got, want)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("boom")

	initErr := WrapInit(StreamVision, base)
	if !IsInitError(initErr) {
		t.Error("WrapInit: expected InitError")
	}
	if !errors.Is(initErr, base) {
		t.Error("WrapInit: expected to unwrap to base error")
	}

	infErr := WrapInference(StreamAudio, base)
	var ie *InferenceError
	if !errors.As(infErr, &ie) {
		t.Fatal("WrapInference: expected InferenceError")
	}
	if ie.Stream != StreamAudio {
		t.Errorf("InferenceError.Stream: got %q, want %q", ie.Stream, StreamAudio)
	}
	if WrapInference(StreamAudio, infErr) != infErr {
		t.Error("WrapInference: expected no double wrapping")
	}
	if WrapInit(StreamAudio, nil) != nil || WrapInference(StreamAudio, nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}
	x, y := b.Center()
	if x != 0.5 || y != 0.5 {
		t.Errorf("Center: got (%.2f, %.2f), want (0.50, 0.50)", x, y)
	}
	if b.Area() != 0.25 {
		t.Errorf("Area: got %.4f, want 0.25", b.Area())
	}
}

func TestMockAudio_Replay(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("mic glitch")
	m := NewMockAudio([][]RawDetection{
		{{"on", 0.9}},
		{{"off", 0.9}},
	}, nil, failure)

	got, err := m.Detect(ctx)
	if err != nil || CommandFrom(got) != CommandOn {
		t.Fatalf("call 1: got %v, %v", got, err)
	}
	if _, err := m.Detect(ctx); !errors.Is(err, failure) {
		t.Fatalf("call 2: expected failure, got %v", err)
	}
	got, err = m.Detect(ctx)
	if err != nil || CommandFrom(got) != CommandOff {
		t.Fatalf("call 3: expected last result repeated, got %v, %v", got, err)
	}
	if len(m.Calls()) != 3 {
		t.Errorf("Calls: got %d, want 3", len(m.Calls()))
	}
}
