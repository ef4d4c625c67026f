package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/teslashibe/go-lumos/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs.
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelFlashV2_5      = "eleven_flash_v2_5" // Lowest latency
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider over the ElevenLabs REST API.
type ElevenLabs struct {
	config  *Config
	api     *apiClient
	baseURL string
}

// NewElevenLabs creates an ElevenLabs provider. API key and voice are
// required.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	e := &ElevenLabs{config: cfg, baseURL: baseURL}
	e.api = &apiClient{
		provider:   providerElevenLabs,
		client:     httpc.NewClient(cfg.Timeout),
		logger:     cfg.Logger.With("component", "tts.elevenlabs"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		setAuth:    func(r *http.Request) { r.Header.Set("xi-api-key", cfg.APIKey) },
		parseError: parseElevenLabsError,
	}
	return e, nil
}

// Synthesize converts text to PCM audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	resp, err := e.api.post(ctx, e.endpoint(""), "audio/pcm", e.buildPayload(text))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	format := FormatFor(e.config.OutputFormat)
	e.api.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  PCMDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream returns audio chunks as ElevenLabs produces them.
func (e *ElevenLabs) Stream(ctx context.Context, text string) (AudioStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	resp, err := e.api.post(ctx, e.endpoint("/stream"), "audio/pcm", e.buildPayload(text))
	if err != nil {
		return nil, err
	}
	return &bodyStream{body: resp.Body, format: FormatFor(e.config.OutputFormat)}, nil
}

// Health checks the API key against the user endpoint.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.api.get(ctx, e.baseURL+"/user")
}

// Close releases idle connections.
func (e *ElevenLabs) Close() error {
	e.api.close()
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) endpoint(suffix string) string {
	q := url.Values{"output_format": {string(e.config.OutputFormat)}}
	return fmt.Sprintf("%s/text-to-speech/%s%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), suffix, q.Encode())
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

func (e *ElevenLabs) buildPayload(text string) elevenLabsRequest {
	vs := e.config.VoiceSettings
	return elevenLabsRequest{
		Text:    text,
		ModelID: e.config.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       vs.Stability,
			SimilarityBoost: vs.SimilarityBoost,
			Style:           vs.Style,
			SpeakerBoost:    vs.SpeakerBoost,
		},
	}
}

func parseElevenLabsError(status int, body []byte) *APIError {
	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	apiErr := &APIError{StatusCode: status, Message: string(body)}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		apiErr.Message = errResp.Detail.Message
		apiErr.Code = errResp.Detail.Status
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)
