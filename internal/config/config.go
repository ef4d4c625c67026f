// Package config loads go-lumos configuration from YAML and the
// environment.
//
// Every field has a default, so an empty or missing file is valid. Secrets
// and deployment endpoints come from the environment and override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/detection/speechcmd"
	"github.com/teslashibe/go-lumos/pkg/detection/yolo"
	"github.com/teslashibe/go-lumos/pkg/emitter"
	"github.com/teslashibe/go-lumos/pkg/framesource"
	"github.com/teslashibe/go-lumos/pkg/poller"
	"github.com/teslashibe/go-lumos/pkg/speech"
	"github.com/teslashibe/go-lumos/pkg/tts"
	"github.com/teslashibe/go-lumos/pkg/web"
)

// Speech providers.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
	ProviderChain      = "chain" // ElevenLabs with OpenAI fallback
	ProviderMock       = "mock"
	ProviderNone       = "none"
)

// Config is the complete go-lumos configuration.
type Config struct {
	LogLevel        string          `yaml:"log_level"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Audio           AudioConfig     `yaml:"audio"`
	Vision          yolo.Config     `yaml:"vision"`
	Camera          CameraConfig    `yaml:"camera"`
	Speech          SpeechConfig    `yaml:"speech"`
	Dashboard       DashboardConfig `yaml:"dashboard"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	Redis           RedisConfig     `yaml:"redis"`
}

// AudioConfig covers capture, the classifier and the poll cadence.
type AudioConfig struct {
	Capture      audioio.Config   `yaml:"capture"`
	Window       time.Duration    `yaml:"window"` // Classifier input length
	Model        speechcmd.Config `yaml:"model"`
	PollInterval time.Duration    `yaml:"poll_interval"`
	Threshold    float64          `yaml:"threshold"`
}

// Poller returns the poller configuration.
func (a AudioConfig) Poller() poller.Config {
	return poller.Config{Interval: a.PollInterval, Threshold: a.Threshold}
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	framesource.Config `yaml:",inline"`
}

// SpeechConfig selects the TTS provider and the playback sink.
type SpeechConfig struct {
	Provider      string         `yaml:"provider"`
	Voice         string         `yaml:"voice"` // Preset name or provider voice ID
	Model         string         `yaml:"model"`
	OpenAIVoice   string         `yaml:"openai_voice"`
	Timeout       time.Duration  `yaml:"timeout"`
	QueueSize     int            `yaml:"queue_size"`
	Output        audioio.Config `yaml:"output"`
	ElevenLabsKey string         `yaml:"-"`
	OpenAIKey     string         `yaml:"-"`
}

// DashboardConfig configures the web dashboard.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// MQTTConfig enables the MQTT emitter.
type MQTTConfig struct {
	Enabled            bool `yaml:"enabled"`
	emitter.MQTTConfig `yaml:",inline"`
}

// RedisConfig enables the Redis emitter.
type RedisConfig struct {
	Enabled             bool `yaml:"enabled"`
	emitter.RedisConfig `yaml:",inline"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		Audio: AudioConfig{
			Capture:      audioio.DefaultConfig(),
			Window:       time.Second,
			Model:        speechcmd.DefaultConfig(),
			PollInterval: poller.DefaultInterval,
			Threshold:    detection.CommandThreshold,
		},
		Vision: yolo.DefaultConfig(),
		Camera: CameraConfig{Config: framesource.DefaultConfig()},
		Speech: SpeechConfig{
			Provider:    ProviderElevenLabs,
			Voice:       tts.DefaultElevenLabsVoice,
			Model:       tts.ModelFlashV2_5,
			OpenAIVoice: tts.VoiceNova,
			Timeout:     15 * time.Second,
			QueueSize:   speech.DefaultQueueSize,
			Output:      audioio.DefaultConfig(),
		},
		Dashboard: DashboardConfig{Enabled: true, Addr: web.DefaultAddr},
		MQTT:      MQTTConfig{MQTTConfig: emitter.DefaultMQTTConfig()},
		Redis:     RedisConfig{RedisConfig: emitter.DefaultRedisConfig()},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Audio.PollInterval > 0, "audio.poll_interval must be > 0, got %v", c.Audio.PollInterval)
	check(c.Audio.Threshold > 0 && c.Audio.Threshold <= 1, "audio.threshold must be in (0,1], got %v", c.Audio.Threshold)
	check(c.Audio.Window > 0, "audio.window must be > 0, got %v", c.Audio.Window)
	check(c.Audio.Model.MaxResults > 0, "audio.model.max_results must be > 0, got %d", c.Audio.Model.MaxResults)
	if err := c.Audio.Capture.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio.capture: %w", err))
	}

	check(c.Vision.ConfidenceThresh > 0 && c.Vision.ConfidenceThresh <= 1,
		"vision.confidence must be in (0,1], got %v", c.Vision.ConfidenceThresh)
	check(c.Vision.NMSThresh > 0 && c.Vision.NMSThresh <= 1,
		"vision.nms must be in (0,1], got %v", c.Vision.NMSThresh)

	switch c.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("camera.rotation must be 0, 90, 180 or 270, got %d", c.Camera.Rotation))
	}

	switch c.Speech.Provider {
	case ProviderElevenLabs, ProviderOpenAI, ProviderChain, ProviderMock, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("speech.provider: unknown provider %q", c.Speech.Provider))
	}
	check(c.Speech.QueueSize > 0, "speech.queue_size must be > 0, got %d", c.Speech.QueueSize)
	if c.Speech.Provider != ProviderNone {
		if err := c.Speech.Output.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("speech.output: %w", err))
		}
	}

	if c.MQTT.Enabled {
		check(c.MQTT.Broker != "", "mqtt.broker is required when mqtt is enabled")
		check(c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Redis.Enabled {
		check(c.Redis.Addr != "", "redis.addr is required when redis is enabled")
	}

	return errors.Join(errs...)
}
