package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/gen-orchestrator/config"
	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/repositories"
	"github.com/upb/gen-orchestrator/repositories/memory"
	"github.com/upb/gen-orchestrator/repositories/postgres"
	"github.com/upb/gen-orchestrator/services/generation"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/providers/elevenlabs"
	"github.com/upb/gen-orchestrator/services/providers/openai"
	"github.com/upb/gen-orchestrator/services/routing"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil when records are kept in memory

	// Repository Factory (nil when records are kept in memory)
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Generations repositories.GenerationRepository

	// Metrics
	Metrics         observability.Metrics
	MetricsRegistry *prometheus.Registry // nil when metrics are disabled

	// Routing
	Providers  *providers.Registry
	Policy     *routing.Policy
	Dispatcher *routing.Dispatcher

	// Services
	GenerationService *generation.Service
}

// NewDependencies creates and wires up all application dependencies. The
// generation workers are started; call Close to stop them.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.initMetrics(cfg)

	if err := deps.initRouting(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize routing: %w", err)
	}

	if err := deps.initGeneration(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize generation service: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.Providers.List()),
		zap.Bool("postgres", deps.DB != nil))
	return deps, nil
}

// initStorage opens PostgreSQL when configured, otherwise uses memory
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Generations = memory.NewGenerationRepository()
		d.Logger.Warn("no database configured, generation records are kept in memory")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Generations = factory.NewRepositories().Generations

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NoopMetrics{}
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.MetricsRegistry = reg
	d.Metrics = observability.NewPrometheusMetrics(cfg.Observability.MetricsNamespace, reg)
}

// initRouting registers the configured providers and builds the dispatcher
func (d *Dependencies) initRouting(cfg *config.Config) error {
	registry := providers.NewRegistry(d.Logger)

	if p := cfg.Providers.OpenAI; p.Enabled() {
		adapter := openai.NewOpenAIAdapter(providerConfig(p))
		registry.Register("openai", providers.RateLimited(adapter, p.RequestsPerSecond))
	}

	if p := cfg.Providers.ElevenLabs; p.Enabled() {
		adapter := elevenlabs.NewAdapter(providerConfig(p))
		registry.Register("elevenlabs", providers.RateLimited(adapter, p.RequestsPerSecond))
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no generation providers configured")
	}

	policy := routing.DefaultPolicy()
	if path := cfg.Routing.PolicyFile; path != "" {
		loaded, err := routing.LoadPolicy(path)
		if err != nil {
			return err
		}
		policy = loaded
		d.Logger.Info("provider policy loaded", zap.String("path", path))
	}

	mode, err := routing.ParseExecutionMode(cfg.Routing.DefaultMode)
	if err != nil {
		return err
	}

	d.Providers = registry
	d.Policy = policy
	d.Dispatcher = routing.NewDispatcher(routing.Config{
		DefaultMode: mode,
		MaxRetries:  cfg.Routing.MaxRetries,
		BackoffUnit: cfg.Routing.BackoffUnit,
	}, registry, policy, d.Metrics, d.Logger)
	return nil
}

func (d *Dependencies) initGeneration(cfg *config.Config) error {
	d.GenerationService = generation.NewService(generation.Config{
		Workers:     cfg.Generation.AsyncWorkers,
		QueueSize:   cfg.Generation.QueueSize,
		Timeout:     cfg.Generation.Timeout,
		DefaultMode: d.Dispatcher.Config().DefaultMode,
	}, d.Dispatcher, d.Generations, d.Logger)

	if d.MetricsRegistry != nil {
		observability.RegisterQueueDepth(cfg.Observability.MetricsNamespace, d.MetricsRegistry, d.GenerationService.QueueDepth)
	}

	return d.GenerationService.Start()
}

// Close gracefully shuts down all dependencies. Queued generations are
// drained within the configured shutdown timeout.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.GenerationService != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = min(timeout, max(0, time.Until(deadline)))
		}
		if err := d.GenerationService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop generation workers: %w", err))
		}
	}

	if err := d.closeStorage(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeStorage() error {
	if d.RepoFactory == nil {
		return nil
	}
	if err := d.RepoFactory.Close(); err != nil {
		return err
	}
	d.Logger.Info("database connection closed")
	d.RepoFactory = nil
	return nil
}

func providerConfig(p config.ProviderConfig) providers.ProviderConfig {
	cfg := providers.DefaultProviderConfig()
	cfg.APIKey = p.APIKey
	cfg.BaseURL = p.BaseURL
	cfg.RequestsPerSecond = p.RequestsPerSecond
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	return cfg
}
