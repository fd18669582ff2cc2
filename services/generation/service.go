package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/repositories"
	"github.com/upb/gen-orchestrator/services"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/routing"
	"go.uber.org/zap"
)

// Dispatcher routes one generation request to providers
type Dispatcher interface {
	Generate(ctx context.Context, kind providers.TaskKind, payload providers.Payload, opts routing.Options) (*routing.Envelope, error)
}

// Request is a generation request as accepted from callers
type Request struct {
	Kind       string
	Payload    providers.Payload
	Providers  []string
	Mode       string
	MaxRetries int
}

// Outcome pairs the stored record with the dispatch envelope
type Outcome struct {
	Generation *models.Generation
	Envelope   *routing.Envelope
}

// Service records generation requests and runs them synchronously or on a
// bounded pool of background workers
type Service struct {
	dispatcher Dispatcher
	repo       repositories.GenerationRepository
	config     Config
	logger     *zap.Logger
	pool       *workerPool
}

// NewService creates a generation service. Call Start before Submit.
func NewService(config Config, dispatcher Dispatcher, repo repositories.GenerationRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()

	s := &Service{
		dispatcher: dispatcher,
		repo:       repo,
		config:     config,
		logger:     logger,
	}
	s.pool = newWorkerPool(config.Workers, config.QueueSize, s.run, logger)
	return s
}

// Start launches the background workers
func (s *Service) Start() error {
	return s.pool.start()
}

// Stop stops accepting submissions and waits for queued work to drain
func (s *Service) Stop(timeout time.Duration) error {
	return s.pool.stop(timeout)
}

// Generate dispatches req and waits for the outcome. The record is stored
// before dispatch and updated with the result.
func (s *Service) Generate(ctx context.Context, req Request) (*Outcome, error) {
	kind, opts, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	g, err := s.newRecord(ctx, kind, opts, req.Payload)
	if err != nil {
		return nil, err
	}

	g.MarkAsProcessing()
	if err := s.repo.Update(ctx, g); err != nil {
		return nil, services.WrapInternal("failed to mark generation processing", err)
	}

	env, dispatchErr := s.dispatcher.Generate(ctx, kind, req.Payload, opts)
	if err := s.record(ctx, g, env, dispatchErr); err != nil {
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	return &Outcome{Generation: g, Envelope: env}, nil
}

// Submit stores a queued record and hands the dispatch to a background
// worker. It returns without waiting for providers.
func (s *Service) Submit(ctx context.Context, req Request) (*models.Generation, error) {
	kind, opts, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	g, err := s.newRecord(ctx, kind, opts, req.Payload)
	if err != nil {
		return nil, err
	}
	queued := *g

	j := &job{
		generation: g,
		kind:       kind,
		payload:    req.Payload,
		opts:       opts,
		requestID:  observability.RequestID(ctx),
	}
	if err := s.pool.enqueue(j); err != nil {
		g.MarkAsFailed(err.Error(), 0)
		if updErr := s.repo.Update(context.WithoutCancel(ctx), g); updErr != nil {
			s.logger.Error("failed to record rejected generation",
				zap.String("generation_id", g.ID.String()),
				zap.Error(updErr))
		}
		return nil, err
	}

	s.logger.Info("generation queued",
		zap.String("generation_id", g.ID.String()),
		zap.String("task", kind.String()))

	return &queued, nil
}

// Get returns a stored generation
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.GenerationNotFound(id.String(), err)
		}
		return nil, services.WrapInternal("failed to load generation", err)
	}
	return g, nil
}

// List returns stored generations, newest first
func (s *Service) List(ctx context.Context, filter repositories.GenerationFilter) ([]*models.Generation, error) {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list generations", err)
	}
	return list, nil
}

// QueueDepth reports how many submissions are waiting for a worker
func (s *Service) QueueDepth() int {
	return s.pool.depth()
}

// prepare validates the task kind and mode up front so invalid requests
// never produce a record
func (s *Service) prepare(req Request) (providers.TaskKind, routing.Options, error) {
	kind, err := providers.ParseTaskKind(req.Kind)
	if err != nil {
		return "", routing.Options{}, services.UnknownTaskKind(req.Kind, err)
	}

	mode := s.config.DefaultMode
	if req.Mode != "" {
		mode, err = routing.ParseExecutionMode(req.Mode)
		if err != nil {
			return "", routing.Options{}, services.InvalidExecutionMode(req.Mode)
		}
	}

	if req.MaxRetries < 0 {
		return "", routing.Options{}, services.NewDomainError(services.ErrorTypeValidation, "max_retries must not be negative", nil).
			WithDetail("max_retries", req.MaxRetries)
	}

	return kind, routing.Options{
		Providers:  req.Providers,
		Mode:       mode,
		MaxRetries: req.MaxRetries,
	}, nil
}

func (s *Service) newRecord(ctx context.Context, kind providers.TaskKind, opts routing.Options, payload providers.Payload) (*models.Generation, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "payload is not serializable", err)
	}

	g := models.NewGeneration(kind.String(), string(opts.Mode), opts.Providers, input)
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, services.WrapInternal("failed to store generation", err)
	}
	return g, nil
}

// record writes the dispatch result onto g. The update outlives a cancelled
// request context so the record never stays in processing.
func (s *Service) record(ctx context.Context, g *models.Generation, env *routing.Envelope, dispatchErr error) error {
	switch {
	case dispatchErr != nil:
		g.MarkAsFailed(dispatchErr.Error(), 0)
	case env.Succeeded():
		output, err := json.Marshal(env.Output)
		if err != nil {
			return services.WrapInternal("failed to encode generation output", err)
		}
		g.MarkAsCompleted(env.Provider, env.Cost, millis(env.Latency), millis(env.TotalLatency), outputURL(env.Output), output)
	default:
		g.MarkAsFailed(env.Error, millis(env.TotalLatency))
	}

	if err := s.repo.Update(context.WithoutCancel(ctx), g); err != nil {
		return services.WrapInternal(fmt.Sprintf("failed to record generation %s", g.ID), err)
	}
	return nil
}

// run executes one queued job on a worker
func (s *Service) run(j *job) {
	ctx := observability.WithRequestID(context.Background(), j.requestID)
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("generation_id", j.generation.ID.String()))

	j.generation.MarkAsProcessing()
	if err := s.repo.Update(ctx, j.generation); err != nil {
		logger.Error("failed to mark generation processing", zap.Error(err))
		return
	}

	env, dispatchErr := s.dispatcher.Generate(ctx, j.kind, j.payload, j.opts)
	if err := s.record(ctx, j.generation, env, dispatchErr); err != nil {
		logger.Error("failed to record generation outcome", zap.Error(err))
		return
	}

	logger.Info("background generation finished",
		zap.String("status", string(j.generation.Status)))
}

func millis(d time.Duration) int {
	return int(d / time.Millisecond)
}

func outputURL(o providers.Output) string {
	switch {
	case o.URL != "":
		return o.URL
	case o.AudioURL != "":
		return o.AudioURL
	default:
		return o.VideoURL
	}
}
