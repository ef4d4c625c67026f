// Package tts turns summary text into raw PCM audio.
//
// Providers are remote synthesis APIs (ElevenLabs, OpenAI) plus a Mock for
// tests and dry runs. All of them return mono PCM16 so the speech sink can
// write the bytes straight to an audioio.Sink without decoding.
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice(tts.ResolveElevenLabsVoice("rachel")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "2 person, 1 chair.")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio, yielding chunks as they arrive.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a streaming synthesis response.
// Callers read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when the stream is done.
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	CharCount int
	LatencyMs int64 // Time to response headers
}

// AudioFormat describes PCM output.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a PCM output format. Values match ElevenLabs output_format.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000" // OpenAI "pcm" response format
	EncodingPCM44 Encoding = "pcm_44100"
)

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	Stability       float64 // 0-1, higher is more consistent
	SimilarityBoost float64 // 0-1
	Style           float64 // 0-1, v2 models only
	SpeakerBoost    bool
}

// DefaultVoiceSettings favors a steady announcer voice.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.7,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding returns the sample rate of enc.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// FormatFor returns mono PCM16 metadata for enc.
func FormatFor(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

// PCMDuration returns the playback time of n bytes of mono PCM16 at rate.
func PCMDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(rate)
}

// ReadAll drains a stream into one buffer and closes it.
func ReadAll(s AudioStream) ([]byte, error) {
	defer s.Close()

	var out []byte
	for {
		chunk, err := s.Read()
		if err != nil {
			return out, err
		}
		if chunk == nil {
			return out, nil
		}
		out = append(out, chunk...)
	}
}
