package aggregate_test

import (
	"strings"
	"testing"

	"github.com/teslashibe/go-lumos/pkg/aggregate"
	"github.com/teslashibe/go-lumos/pkg/detection"
)

func dets(labels ...string) []detection.VisionDetection {
	out := make([]detection.VisionDetection, len(labels))
	for i, l := range labels {
		out[i] = detection.VisionDetection{Label: l, Score: 0.9}
	}
	return out
}

func TestAggregate_SpeechText(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{name: "empty input", labels: nil, want: "Nothing detected."},
		{name: "only unmapped labels", labels: []string{"dog", "cup", "tv"}, want: "Nothing detected."},
		{name: "punctuation law", labels: []string{"person", "chair", "person"}, want: "2 person, 1 chair."},
		{name: "single category", labels: []string{"car"}, want: "1 vehicle."},
		{name: "no pluralization", labels: []string{"bench", "couch", "chair"}, want: "3 chair."},
		{name: "first seen order", labels: []string{"bus", "person", "bench", "train"}, want: "2 vehicle, 1 person, 1 chair."},
		{name: "unmapped interleaved", labels: []string{"dog", "motorcycle", "cat", "person"}, want: "1 vehicle, 1 person."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := aggregate.Aggregate(dets(tc.labels...))
			if got.SpeechText != tc.want {
				t.Errorf("SpeechText: got %q, want %q", got.SpeechText, tc.want)
			}
		})
	}
}

func TestAggregate_EmptyInputLaw(t *testing.T) {
	s := aggregate.Aggregate([]detection.VisionDetection{})
	if s.SpeechText != aggregate.NothingDetected {
		t.Errorf("SpeechText: got %q", s.SpeechText)
	}
	if !s.Empty() || len(s.Counts) != 0 {
		t.Errorf("Counts: got %v, want empty", s.Counts)
	}
}

func TestAggregate_Counts(t *testing.T) {
	s := aggregate.Aggregate(dets("person", "chair", "person"))
	want := []aggregate.Count{
		{Category: aggregate.Person, Count: 2},
		{Category: aggregate.Chair, Count: 1},
	}
	if len(s.Counts) != len(want) {
		t.Fatalf("Counts: got %v, want %v", s.Counts, want)
	}
	for i := range want {
		if s.Counts[i] != want[i] {
			t.Errorf("Counts[%d]: got %v, want %v", i, s.Counts[i], want[i])
		}
	}
	if s.Total() != 3 {
		t.Errorf("Total: got %d, want 3", s.Total())
	}
}

func TestCategorize_Totality(t *testing.T) {
	tests := []struct {
		labels []string
		want   aggregate.Category
	}{
		{labels: []string{"person"}, want: aggregate.Person},
		{labels: []string{"chair", "couch", "bench"}, want: aggregate.Chair},
		{labels: []string{"bicycle", "motorcycle", "bus", "car", "train"}, want: aggregate.Vehicle},
	}

	for _, tc := range tests {
		for _, l := range tc.labels {
			got, ok := aggregate.Categorize(l)
			if !ok || got != tc.want {
				t.Errorf("Categorize(%q): got %v/%v, want %v", l, got, ok, tc.want)
			}
		}
	}

	for _, l := range []string{"truck", "dog", "", "Person", "airplane"} {
		if _, ok := aggregate.Categorize(l); ok {
			t.Errorf("Categorize(%q): expected unmapped", l)
		}
	}
}

func TestAggregate_UnmappedNeverSpoken(t *testing.T) {
	s := aggregate.Aggregate(dets("truck", "person", "airplane"))
	for _, l := range []string{"truck", "airplane"} {
		if strings.Contains(s.SpeechText, l) {
			t.Errorf("SpeechText %q mentions unmapped label %q", s.SpeechText, l)
		}
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	in := dets("car", "person", "couch", "bus", "person", "bicycle", "bench")
	first := aggregate.Aggregate(in)
	for i := 0; i < 50; i++ {
		if got := aggregate.Aggregate(in); got.SpeechText != first.SpeechText {
			t.Fatalf("run %d: got %q, want %q", i, got.SpeechText, first.SpeechText)
		}
	}
}

func TestCategory_MarshalText(t *testing.T) {
	b, err := aggregate.Vehicle.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(b) != "vehicle" {
		t.Errorf("MarshalText: got %q, want %q", b, "vehicle")
	}
}

func TestCategory_UnmarshalText(t *testing.T) {
	var c aggregate.Category
	if err := c.UnmarshalText([]byte("chair")); err != nil || c != aggregate.Chair {
		t.Errorf("UnmarshalText(chair): got %v, %v", c, err)
	}
	if err := c.UnmarshalText([]byte("truck")); err == nil {
		t.Error("UnmarshalText(truck) should fail")
	}
}
