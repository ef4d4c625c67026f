package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-lumos/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI models.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI implements Provider over the OpenAI speech endpoint. It always
// requests the "pcm" response format, which is 24kHz mono PCM16.
type OpenAI struct {
	config  *Config
	api     *apiClient
	baseURL string
}

// NewOpenAI creates an OpenAI provider. Only the API key is required.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceNova
	cfg.Apply(opts...)
	cfg.OutputFormat = EncodingPCM24

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceNova
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	o := &OpenAI{config: cfg, baseURL: baseURL}
	o.api = &apiClient{
		provider:   providerOpenAI,
		client:     httpc.NewClient(cfg.Timeout),
		logger:     cfg.Logger.With("component", "tts.openai"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		setAuth:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+cfg.APIKey) },
		parseError: parseOpenAIError,
	}
	return o, nil
}

type openAIRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

func (o *OpenAI) request(text string) openAIRequest {
	return openAIRequest{
		Model:          o.config.ModelID,
		Voice:          o.config.VoiceID,
		Input:          text,
		ResponseFormat: "pcm",
	}
}

// Synthesize converts text to PCM audio.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	resp, err := o.api.post(ctx, o.baseURL+"/audio/speech", "", o.request(text))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}

	o.api.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	format := FormatFor(EncodingPCM24)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  PCMDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream returns the response body as it downloads.
func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	resp, err := o.api.post(ctx, o.baseURL+"/audio/speech", "", o.request(text))
	if err != nil {
		return nil, err
	}
	return &bodyStream{body: resp.Body, format: FormatFor(EncodingPCM24)}, nil
}

// Health checks the API key against the models endpoint.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.api.get(ctx, o.baseURL+"/models")
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.api.close()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func parseOpenAIError(status int, body []byte) *APIError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: status, Message: string(body)}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}

var _ Provider = (*OpenAI)(nil)
