// Package observability provides structured logging and metrics for the
// generation orchestrator.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Request ID propagation through context
//   - Prometheus collectors for dispatches, provider attempts and cost
package observability
