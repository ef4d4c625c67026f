// Package aggregate turns one frame's object detections into category counts
// and a spoken summary.
package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// NothingDetected is the summary text when no mapped category is present.
const NothingDetected = "Nothing detected."

// Category is a counted object group.
type Category int

const (
	Person Category = iota + 1
	Chair
	Vehicle
)

// String returns the singular lowercase name used in speech.
func (c Category) String() string {
	switch c {
	case Person:
		return "person"
	case Chair:
		return "chair"
	case Vehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// MarshalText renders the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a category name.
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "person":
		*c = Person
	case "chair":
		*c = Chair
	case "vehicle":
		*c = Vehicle
	default:
		return fmt.Errorf("aggregate: unknown category %q", text)
	}
	return nil
}

// labels maps raw detector labels to categories. Anything not listed is
// excluded from counts and speech.
var labels = map[string]Category{
	"person":     Person,
	"chair":      Chair,
	"couch":      Chair,
	"bench":      Chair,
	"bicycle":    Vehicle,
	"motorcycle": Vehicle,
	"bus":        Vehicle,
	"car":        Vehicle,
	"train":      Vehicle,
}

// Categorize maps a raw label to its category.
func Categorize(label string) (Category, bool) {
	c, ok := labels[label]
	return c, ok
}

// Count is one category and how many detections mapped to it.
type Count struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Summary is the aggregated result of one vision cycle.
type Summary struct {
	// Counts are ordered by first appearance in the detection list.
	Counts []Count `json:"counts"`

	// SpeechText is the rendered sentence, e.g. "2 person, 1 chair."
	SpeechText string `json:"speech_text"`
}

// Empty reports whether no category was counted.
func (s Summary) Empty() bool {
	return len(s.Counts) == 0
}

// Total returns the number of counted detections.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c.Count
	}
	return n
}

// Aggregate counts detections per category in first-seen order and renders
// the speech text. It has no side effects and is deterministic for a given
// input order.
func Aggregate(dets []detection.VisionDetection) Summary {
	var counts []Count
	index := make(map[Category]int, 3)

	for _, d := range dets {
		c, ok := Categorize(d.Label)
		if !ok {
			continue
		}
		if i, seen := index[c]; seen {
			counts[i].Count++
			continue
		}
		index[c] = len(counts)
		counts = append(counts, Count{Category: c, Count: 1})
	}

	return Summary{Counts: counts, SpeechText: Render(counts)}
}

// Render formats counts as "<n> <name>" pairs joined by ", " and terminated
// with ".". Names are never pluralized.
func Render(counts []Count) string {
	if len(counts) == 0 {
		return NothingDetected
	}

	var b strings.Builder
	for i, c := range counts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(c.Count))
		b.WriteByte(' ')
		b.WriteString(c.Category.String())
	}
	b.WriteByte('.')
	return b.String()
}
