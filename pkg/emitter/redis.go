package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis emitter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"` // Events go to <channel>:<type>
}

// DefaultRedisConfig returns defaults for a local server.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", Channel: "lumos"}
}

// publisher is the part of *redis.Client the emitter uses.
type publisher interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Redis publishes events with PUBLISH.
type Redis struct {
	cfg    RedisConfig
	client publisher
	logger *slog.Logger

	mu        sync.Mutex
	connected bool // Result of the last round trip
	published map[string]uint64
	errors    uint64
}

// NewRedis creates a Redis emitter. Call Connect to verify the server.
func NewRedis(cfg RedisConfig, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 10 * time.Second,
	})
	return newRedis(cfg, client, logger)
}

func newRedis(cfg RedisConfig, client publisher, logger *slog.Logger) *Redis {
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisConfig().Channel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		cfg:       cfg,
		client:    client,
		logger:    logger.With("component", "emitter", "backend", "redis"),
		published: make(map[string]uint64),
	}
}

// Connect pings the server.
func (r *Redis) Connect(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", r.cfg.Addr, err)
	}
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	r.logger.Info("connected to redis", "addr", r.cfg.Addr)
	return nil
}

// Channel returns the pub/sub channel for an event type.
func (r *Redis) Channel(t EventType) string {
	return r.cfg.Channel + ":" + string(t)
}

// Publish sends ev as JSON.
func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.JSON()
	if err != nil {
		r.fail()
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	channel := r.Channel(ev.Type)
	n, err := r.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		r.fail()
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}

	r.mu.Lock()
	r.published[channel]++
	r.connected = true
	r.mu.Unlock()

	r.logger.Debug("event published", "channel", channel, "receivers", n)
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Stats returns publish counters.
func (r *Redis) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	published := make(map[string]uint64, len(r.published))
	for k, v := range r.published {
		published[k] = v
	}
	return Stats{Connected: r.connected, Published: published, Errors: r.errors}
}

func (r *Redis) fail() {
	r.mu.Lock()
	r.connected = false
	r.errors++
	r.mu.Unlock()
}

var _ Emitter = (*Redis)(nil)
