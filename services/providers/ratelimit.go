package providers

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider and waits on a token bucket before
// every outbound call. A wait that is cancelled surfaces as the context error.
// Kinds the inner provider reports as unsupported fail without spending a token.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// RateLimited wraps provider with a limiter allowing rps calls per second.
// A non-positive rps returns provider unchanged.
func RateLimited(provider Provider, rps float64) Provider {
	if rps <= 0 {
		return provider
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   provider,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the wrapped provider's name
func (p *RateLimitedProvider) Name() string {
	return p.inner.Name()
}

func (p *RateLimitedProvider) GenerateText(ctx context.Context, payload Payload) (*Result, error) {
	if err := p.wait(ctx, TaskText); err != nil {
		return nil, err
	}
	return p.inner.GenerateText(ctx, payload)
}

func (p *RateLimitedProvider) GenerateImage(ctx context.Context, payload Payload) (*Result, error) {
	if err := p.wait(ctx, TaskImage); err != nil {
		return nil, err
	}
	return p.inner.GenerateImage(ctx, payload)
}

func (p *RateLimitedProvider) SynthesizeVoice(ctx context.Context, payload Payload) (*Result, error) {
	if err := p.wait(ctx, TaskVoice); err != nil {
		return nil, err
	}
	return p.inner.SynthesizeVoice(ctx, payload)
}

func (p *RateLimitedProvider) GenerateVideo(ctx context.Context, payload Payload) (*Result, error) {
	if err := p.wait(ctx, TaskVideo); err != nil {
		return nil, err
	}
	return p.inner.GenerateVideo(ctx, payload)
}

// Supports reports the inner provider's capabilities; providers that do not
// declare them are assumed to serve every kind
func (p *RateLimitedProvider) Supports(kind TaskKind) bool {
	if c, ok := p.inner.(Capabilities); ok {
		return c.Supports(kind)
	}
	return true
}

func (p *RateLimitedProvider) wait(ctx context.Context, kind TaskKind) error {
	if !p.Supports(kind) {
		return NewUnsupportedError(p.inner.Name(), kind)
	}
	return p.limiter.Wait(ctx)
}
