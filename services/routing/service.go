package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/services"
	"github.com/upb/gen-orchestrator/services/providers"
	"go.uber.org/zap"
)

// Config holds configuration for the dispatcher
type Config struct {
	// DefaultMode is used when a call does not pick a mode
	DefaultMode ExecutionMode

	// MaxRetries is the per-provider attempt budget when a call does not set one
	MaxRetries int

	// BackoffUnit scales the 2^attempt retry delay
	BackoffUnit time.Duration
}

// DefaultConfig returns the standard dispatcher configuration
func DefaultConfig() Config {
	return Config{
		DefaultMode: ModeSequential,
		MaxRetries:  3,
		BackoffUnit: DefaultBackoffUnit,
	}
}

// Dispatcher is the entry point for generation requests. It resolves the
// provider list, selects a strategy and stamps total latency.
type Dispatcher struct {
	config     Config
	registry   *providers.Registry
	policy     *Policy
	retry      *RetryController
	strategies map[ExecutionMode]Strategy
	stats      *StatsTracker
	metrics    observability.Metrics
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil policy uses DefaultPolicy.
func NewDispatcher(config Config, registry *providers.Registry, policy *Policy, metrics observability.Metrics, logger *zap.Logger) *Dispatcher {
	if config.DefaultMode == "" {
		config.DefaultMode = ModeSequential
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stats := NewStatsTracker()
	retry := NewRetryController(registry, config.BackoffUnit, metrics, stats, logger)

	return &Dispatcher{
		config:   config,
		registry: registry,
		policy:   policy,
		retry:    retry,
		strategies: map[ExecutionMode]Strategy{
			ModeSequential: NewSequential(retry, logger),
			ModeParallel:   NewRace(retry, logger),
		},
		stats:   stats,
		metrics: metrics,
		logger:  logger,
	}
}

// Generate dispatches one request and returns exactly one envelope.
//
// Only an unrecognized kind without an explicit provider list and an invalid
// mode are returned as errors. Unregistered ids fail like any other provider
// and are reported in a failed envelope.
func (d *Dispatcher) Generate(ctx context.Context, kind providers.TaskKind, payload providers.Payload, opts Options) (*Envelope, error) {
	start := time.Now()

	ids, err := d.resolveProviders(kind, opts.Providers)
	if err != nil {
		return nil, err
	}

	mode := d.config.DefaultMode
	if opts.Mode != "" {
		parsed, err := ParseExecutionMode(string(opts.Mode))
		if err != nil {
			return nil, services.InvalidExecutionMode(string(opts.Mode))
		}
		mode = parsed
	}
	strategy, ok := d.strategies[mode]
	if !ok {
		return nil, services.InvalidExecutionMode(string(mode))
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = d.config.MaxRetries
	}

	logger := observability.LoggerFromContext(ctx, d.logger)
	logger.Info("dispatch started",
		zap.String("task", kind.String()),
		zap.Strings("providers", ids),
		zap.String("mode", string(mode)),
		zap.Int("max_retries", maxRetries),
	)

	env := strategy.Execute(ctx, kind, payload, ids, maxRetries)
	env.TotalLatency = time.Since(start)

	labels := observability.RequestLabels{
		Task:     kind.String(),
		Provider: env.Provider,
		Mode:     string(mode),
		Status:   string(env.Status),
	}
	d.metrics.RecordRequest(ctx, labels)
	d.metrics.RecordLatency(ctx, env.TotalLatency.Seconds(), labels)

	if env.Succeeded() {
		d.metrics.RecordCost(ctx, env.Cost, labels)
		logger.Info("dispatch completed",
			zap.String("provider", env.Provider),
			zap.Duration("total_latency", env.TotalLatency),
			zap.Float64("cost", env.Cost),
		)
	} else {
		logger.Warn("dispatch failed",
			zap.String("task", kind.String()),
			zap.Duration("total_latency", env.TotalLatency),
			zap.String("error", env.Error),
		)
	}

	return env, nil
}

// resolveProviders applies the explicit list or the policy entry for kind
func (d *Dispatcher) resolveProviders(kind providers.TaskKind, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return append([]string(nil), explicit...), nil
	}

	if !kind.Valid() {
		return nil, services.UnknownTaskKind(kind.String(), fmt.Errorf("%w: %q", providers.ErrUnknownTaskKind, kind.String()))
	}
	return d.policy.Providers(kind), nil
}

// Stats returns the accumulated per provider statistics
func (d *Dispatcher) Stats() []ProviderStats {
	return d.stats.Snapshot()
}

// Policy returns the provider policy in use
func (d *Dispatcher) Policy() *Policy {
	return d.policy
}

// Registry returns the provider registry
func (d *Dispatcher) Registry() *providers.Registry {
	return d.registry
}

// Config returns the dispatcher configuration
func (d *Dispatcher) Config() Config {
	return d.config
}
