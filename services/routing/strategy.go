package routing

import (
	"context"
	"sync"

	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/services/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Strategy executes a provider list and always produces an envelope.
// Individual provider failures never escape as errors.
type Strategy interface {
	Execute(ctx context.Context, kind providers.TaskKind, payload providers.Payload, providerIDs []string, maxRetries int) *Envelope
}

// Sequential tries providers in order and returns the first success
type Sequential struct {
	retry  *RetryController
	logger *zap.Logger
}

// NewSequential creates a failover strategy
func NewSequential(retry *RetryController, logger *zap.Logger) *Sequential {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequential{retry: retry, logger: logger}
}

func (s *Sequential) Execute(ctx context.Context, kind providers.TaskKind, payload providers.Payload, providerIDs []string, maxRetries int) *Envelope {
	logger := observability.LoggerFromContext(ctx, s.logger)
	failures := make([]string, 0, len(providerIDs))

	for _, id := range providerIDs {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err().Error())
			break
		}

		env, err := s.retry.Execute(ctx, kind, payload, id, maxRetries)
		if err == nil {
			return env
		}

		logger.Warn("provider failed, trying next",
			zap.String("provider", id),
			zap.Error(err),
		)
		failures = append(failures, err.Error())
	}

	return failedEnvelope(failures)
}

// Race launches every provider at once and returns the first success.
// Losers are cancelled through the shared context; their results are dropped.
type Race struct {
	retry  *RetryController
	logger *zap.Logger
}

// NewRace creates a parallel race strategy
func NewRace(retry *RetryController, logger *zap.Logger) *Race {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Race{retry: retry, logger: logger}
}

func (r *Race) Execute(ctx context.Context, kind providers.TaskKind, payload providers.Payload, providerIDs []string, maxRetries int) *Envelope {
	if len(providerIDs) == 0 {
		return failedEnvelope(nil)
	}

	logger := observability.LoggerFromContext(ctx, r.logger)
	raceCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(raceCtx)

	// Buffered to the provider count so a late winner never blocks.
	winners := make(chan *Envelope, len(providerIDs))

	var (
		mu       sync.Mutex
		failures []string
	)

	for _, id := range providerIDs {
		g.Go(func() error {
			env, err := r.retry.Execute(gctx, kind, payload, id, maxRetries)
			if err != nil {
				if raceCtx.Err() == nil {
					logger.Warn("provider failed in race",
						zap.String("provider", id),
						zap.Error(err),
					)
					mu.Lock()
					failures = append(failures, err.Error())
					mu.Unlock()
				}
				return nil
			}
			winners <- env
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case env := <-winners:
		cancel()
		go func() {
			<-done
			logger.Debug("race losers finished", zap.String("winner", env.Provider))
		}()
		return env
	case <-done:
		cancel()
		// A success may have landed just before the group finished.
		select {
		case env := <-winners:
			return env
		default:
		}
		mu.Lock()
		defer mu.Unlock()
		return failedEnvelope(failures)
	}
}
