package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/upb/gen-orchestrator/services/providers"
)

// ExecutionMode selects how a provider list is executed
type ExecutionMode string

const (
	// ModeSequential tries providers one at a time in list order
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel races every provider and keeps the first success
	ModeParallel ExecutionMode = "parallel"
)

// AllProvidersFailed is the envelope error when no provider succeeded
const AllProvidersFailed = "all providers failed"

// ParseExecutionMode accepts "sequential"/"failover" and "parallel"/"race".
// The empty string yields ModeSequential.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential", "failover":
		return ModeSequential, nil
	case "parallel", "race":
		return ModeParallel, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// Options are the per-call execution options. Zero values take defaults.
type Options struct {
	// Providers to try in order; empty means the policy list for the task
	Providers []string

	// Mode defaults to sequential
	Mode ExecutionMode

	// MaxRetries is the attempt budget per provider; zero means the default
	MaxRetries int
}

// Status is the outcome of a dispatch
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Envelope is the normalized result of a single Generate call
type Envelope struct {
	Status       Status           `json:"status"`
	Provider     string           `json:"provider,omitempty"`
	Cost         float64          `json:"cost"`
	Latency      time.Duration    `json:"latency"`
	TotalLatency time.Duration    `json:"total_latency"`
	Error        string           `json:"error,omitempty"`
	Output       providers.Output `json:"output"`
}

// Succeeded reports whether the envelope carries a provider result
func (e *Envelope) Succeeded() bool {
	return e != nil && e.Status == StatusSuccess
}

func successEnvelope(provider string, res *providers.Result) *Envelope {
	return &Envelope{
		Status:   StatusSuccess,
		Provider: provider,
		Cost:     res.Cost,
		Latency:  res.Latency,
		Output:   res.Output,
	}
}

func failedEnvelope(failures []string) *Envelope {
	msg := AllProvidersFailed
	if len(failures) > 0 {
		msg += ": " + strings.Join(failures, "; ")
	}
	return &Envelope{Status: StatusFailed, Error: msg}
}
