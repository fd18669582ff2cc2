// Package providertest provides a scriptable Provider for tests.
package providertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/gen-orchestrator/services/providers"
)

// ErrInjected is the failure returned by scripted failing calls
var ErrInjected = errors.New("injected provider failure")

// CallFunc scripts the outcome of the n-th call (starting at 1)
type CallFunc func(ctx context.Context, kind providers.TaskKind, payload providers.Payload, n int) (*providers.Result, error)

// FakeProvider is a Provider whose behaviour is driven by a CallFunc.
// Every contract method counts as one call.
type FakeProvider struct {
	name      string
	fn        CallFunc
	delay     time.Duration
	supported map[providers.TaskKind]bool

	calls     atomic.Int64
	cancelled atomic.Int64

	mu    sync.Mutex
	kinds []providers.TaskKind
}

// New creates a fake that runs fn for every call
func New(name string, fn CallFunc) *FakeProvider {
	return &FakeProvider{name: name, fn: fn}
}

// Succeeding returns a fake that always succeeds with the given cost
func Succeeding(name string, cost float64) *FakeProvider {
	return New(name, func(_ context.Context, kind providers.TaskKind, _ providers.Payload, _ int) (*providers.Result, error) {
		return Success(name, kind, cost), nil
	})
}

// Failing returns a fake that always fails with ErrInjected
func Failing(name string) *FakeProvider {
	return New(name, func(context.Context, providers.TaskKind, providers.Payload, int) (*providers.Result, error) {
		return nil, providers.NewProviderError(name, "INJECTED", "scripted failure", 503, true, ErrInjected)
	})
}

// FailingTimes returns a fake that fails the first n calls then succeeds
func FailingTimes(name string, n int, cost float64) *FakeProvider {
	return New(name, func(_ context.Context, kind providers.TaskKind, _ providers.Payload, call int) (*providers.Result, error) {
		if call <= n {
			return nil, providers.NewProviderError(name, "INJECTED", "scripted failure", 503, true, ErrInjected)
		}
		return Success(name, kind, cost), nil
	})
}

// Success builds a result carrying output for kind
func Success(name string, kind providers.TaskKind, cost float64) *providers.Result {
	out := providers.Output{Model: name + "-model"}
	switch kind {
	case providers.TaskText:
		out.Text = "text from " + name
	case providers.TaskImage:
		out.URL = "https://img.example.com/" + name + ".png"
	case providers.TaskVoice:
		out.AudioURL = "https://audio.example.com/" + name + ".mp3"
	case providers.TaskVideo:
		out.VideoURL = "https://video.example.com/" + name + ".mp4"
	}
	return &providers.Result{Output: out, Cost: cost, Latency: 5 * time.Millisecond}
}

// WithDelay makes every call wait d before running, honouring cancellation
func (f *FakeProvider) WithDelay(d time.Duration) *FakeProvider {
	f.delay = d
	return f
}

// Supporting restricts the fake to kinds; other kinds report unsupported
func (f *FakeProvider) Supporting(kinds ...providers.TaskKind) *FakeProvider {
	f.supported = make(map[providers.TaskKind]bool, len(kinds))
	for _, k := range kinds {
		f.supported[k] = true
	}
	return f
}

// Calls returns the number of contract calls made
func (f *FakeProvider) Calls() int {
	return int(f.calls.Load())
}

// Cancelled returns how many calls observed context cancellation while waiting
func (f *FakeProvider) Cancelled() int {
	return int(f.cancelled.Load())
}

// Kinds returns the task kinds the fake was invoked with, in call order
func (f *FakeProvider) Kinds() []providers.TaskKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.TaskKind(nil), f.kinds...)
}

func (f *FakeProvider) Name() string { return f.name }

// Supports reports false only for kinds excluded by Supporting
func (f *FakeProvider) Supports(kind providers.TaskKind) bool {
	return f.supported == nil || f.supported[kind]
}

func (f *FakeProvider) GenerateText(ctx context.Context, p providers.Payload) (*providers.Result, error) {
	return f.call(ctx, providers.TaskText, p)
}

func (f *FakeProvider) GenerateImage(ctx context.Context, p providers.Payload) (*providers.Result, error) {
	return f.call(ctx, providers.TaskImage, p)
}

func (f *FakeProvider) SynthesizeVoice(ctx context.Context, p providers.Payload) (*providers.Result, error) {
	return f.call(ctx, providers.TaskVoice, p)
}

func (f *FakeProvider) GenerateVideo(ctx context.Context, p providers.Payload) (*providers.Result, error) {
	return f.call(ctx, providers.TaskVideo, p)
}

func (f *FakeProvider) call(ctx context.Context, kind providers.TaskKind, p providers.Payload) (*providers.Result, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()

	if f.supported != nil && !f.supported[kind] {
		return nil, providers.NewUnsupportedError(f.name, kind)
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.cancelled.Add(1)
			return nil, ctx.Err()
		}
	}

	return f.fn(ctx, kind, p, n)
}
