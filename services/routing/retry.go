package routing

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/services/providers"
	"go.uber.org/zap"
)

// DefaultBackoffUnit is the base delay; attempt i waits 2^i units before the next
const DefaultBackoffUnit = time.Second

var errEmptyResult = errors.New("provider returned no output")

// RetryController runs a single provider with bounded exponential backoff
type RetryController struct {
	registry    *providers.Registry
	backoffUnit time.Duration
	metrics     observability.Metrics
	stats       *StatsTracker
	logger      *zap.Logger
}

// NewRetryController creates a retry controller. A non-positive backoffUnit
// uses DefaultBackoffUnit; nil metrics, stats or logger are replaced with
// no-op values.
func NewRetryController(registry *providers.Registry, backoffUnit time.Duration, metrics observability.Metrics, stats *StatsTracker, logger *zap.Logger) *RetryController {
	if backoffUnit <= 0 {
		backoffUnit = DefaultBackoffUnit
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if stats == nil {
		stats = NewStatsTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{
		registry:    registry,
		backoffUnit: backoffUnit,
		metrics:     metrics,
		stats:       stats,
		logger:      logger,
	}
}

// Delay returns the wait after the attempt with zero-based index i
func (c *RetryController) Delay(i int) time.Duration {
	return c.backoffUnit << uint(i)
}

// Execute invokes providerID for kind up to maxRetries times (at least once).
// A missing registration fails without any attempt. Unsupported tasks and
// unknown kinds are not retried. On success the envelope carries the cost and
// latency of the succeeding attempt only.
func (c *RetryController) Execute(ctx context.Context, kind providers.TaskKind, payload providers.Payload, providerID string, maxRetries int) (*Envelope, error) {
	provider, err := c.registry.Resolve(providerID)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	logger := observability.LoggerFromContext(ctx, c.logger).With(
		zap.String("provider", providerID),
		zap.String("task", kind.String()),
	)
	backoff := retry.WithMaxRetries(uint64(maxRetries-1), retry.NewExponential(c.backoffUnit))

	var (
		attempt int
		result  *providers.Result
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		start := time.Now()

		res, callErr := providers.Invoke(ctx, provider, kind, payload)
		if callErr == nil && (res == nil || res.Output.Empty()) {
			callErr = errEmptyResult
		}
		if callErr != nil {
			if ctx.Err() == nil {
				c.metrics.RecordAttempt(ctx, providerID, "failure")
			}
			if !retryable(ctx, callErr) {
				logger.Warn("provider attempt failed, not retrying",
					zap.Int("attempt", attempt),
					zap.Bool("provider_retryable", providers.IsRetryable(callErr)),
					zap.Error(callErr),
				)
				return callErr
			}
			if attempt < maxRetries {
				logger.Warn("provider attempt failed, retrying",
					zap.Int("attempt", attempt),
					zap.Int("max_retries", maxRetries),
					zap.Duration("delay", c.Delay(attempt-1)),
					zap.Bool("provider_retryable", providers.IsRetryable(callErr)),
					zap.Error(callErr),
				)
			}
			return retry.RetryableError(callErr)
		}

		// The provider's result is never mutated.
		r := *res
		if r.Latency <= 0 {
			r.Latency = time.Since(start)
		}
		result = &r
		return nil
	})

	// Outcomes that land after cancellation belong to abandoned race losers
	// and are kept out of metrics and stats.
	cancelled := ctx.Err() != nil
	if err != nil {
		if !cancelled {
			c.stats.Record(providerID, kind, false, 0, 0)
		}
		return nil, err
	}

	if !cancelled {
		c.metrics.RecordAttempt(ctx, providerID, "success")
		c.stats.Record(providerID, kind, true, result.Latency, result.Cost)
	}
	return successEnvelope(providerID, result), nil
}

// retryable reports whether another attempt could change the outcome
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if providers.IsUnsupported(err) || errors.Is(err, providers.ErrUnknownTaskKind) {
		return false
	}
	return true
}
