package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain tries providers in order; the first success wins. It lets a
// deployment fall back from ElevenLabs to OpenAI when one API is down.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain. At least one provider is required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize tries each provider until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return tryEach(ctx, c, func(p Provider) (*AudioResult, error) {
		return p.Synthesize(ctx, text)
	})
}

// Stream tries each provider until one opens a stream.
func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	return tryEach(ctx, c, func(p Provider) (AudioStream, error) {
		return p.Stream(ctx, text)
	})
}

func tryEach[T any](ctx context.Context, c *Chain, call func(Provider) (T, error)) (T, error) {
	var zero T
	var errs []error

	for i, p := range c.providers {
		v, err := call(p)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider_index", i)
			}
			return v, nil
		}
		if errors.Is(err, ErrEmptyText) {
			return zero, err
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"provider_index", i,
			"error", err,
		)
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("tts chain: all %d providers failed: %w", len(errs), errors.Join(errs...))
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("all %d providers unhealthy: %w", len(c.providers), errors.Join(errs...))
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
