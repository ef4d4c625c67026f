package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback.
	Start(ctx context.Context) error

	// Stop halts audio playback. It is safe to call Stop multiple times.
	Stop() error

	// Write sends an audio chunk to the output device.
	// This may block if the output buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Clear discards all buffered audio immediately.
	// The speech sink calls it to preempt an utterance.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	ChunksWritten  int64  `json:"chunks_written"`
	SamplesWritten int64  `json:"samples_written"`
	Clears         int64  `json:"clears"`
	Running        bool   `json:"running"`
	Backend        string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
