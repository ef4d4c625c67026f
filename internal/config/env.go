package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvCameraURL     = "LUMOS_CAMERA_URL"
	EnvMQTTBroker    = "LUMOS_MQTT_BROKER"
	EnvRedisAddr     = "LUMOS_REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvLogLevel      = "LUMOS_LOG_LEVEL"
	EnvPollInterval  = "LUMOS_POLL_INTERVAL"
)

// ApplyEnv overrides file values with set environment variables. Setting a
// broker or Redis address also enables that emitter.
func (c *Config) ApplyEnv() {
	c.Speech.ElevenLabsKey = Env(EnvElevenLabsKey, c.Speech.ElevenLabsKey)
	c.Speech.OpenAIKey = Env(EnvOpenAIKey, c.Speech.OpenAIKey)
	c.Camera.URL = Env(EnvCameraURL, c.Camera.URL)
	c.LogLevel = Env(EnvLogLevel, c.LogLevel)
	c.Redis.Password = Env(EnvRedisPassword, c.Redis.Password)

	if broker := os.Getenv(EnvMQTTBroker); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	c.Audio.PollInterval = EnvDuration(EnvPollInterval, c.Audio.PollInterval)
}

// Env returns the value of key, or def when unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvDuration parses key as a duration ("500ms") or whole milliseconds,
// returning def when unset or invalid.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
