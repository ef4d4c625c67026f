// Package audioio provides audio capture and playback for the command
// classifier and the speech sink.
//
// Backends:
//   - ALSA (Linux) - arecord/aplay subprocesses speaking raw PCM16
//   - Mock - synthetic audio for tests and dry runs
//
// Window keeps the most recent seconds of captured audio so the classifier
// can snapshot it on every poll.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects ALSA on Linux and Mock elsewhere.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA command line tools.
	BackendALSA Backend = "alsa"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (speech command models)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of each captured chunk.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the ALSA device identifier ("default", "hw:0,0", "plughw:1,0").
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case "", BackendAuto, BackendALSA, BackendMock:
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (PCM16).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
