package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/upb/gen-orchestrator/services/providers"
)

// ProviderStats summarizes one provider's record for one task kind
type ProviderStats struct {
	Provider     string             `json:"provider"`
	Task         providers.TaskKind `json:"task"`
	Requests     int64              `json:"total_requests"`
	Successes    int64              `json:"successes"`
	Failures     int64              `json:"failures"`
	SuccessRate  float64            `json:"success_rate"`
	FailureRate  float64            `json:"failure_rate"`
	AvgLatencyMs float64            `json:"avg_latency_ms"`
	TotalCost    float64            `json:"total_cost"`
}

type statsKey struct {
	provider string
	task     providers.TaskKind
}

type statsEntry struct {
	requests     int64
	successes    int64
	totalLatency time.Duration
	totalCost    float64
}

// StatsTracker accumulates per provider and task outcomes in memory
type StatsTracker struct {
	mu      sync.Mutex
	entries map[statsKey]*statsEntry
}

// NewStatsTracker creates an empty tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{entries: make(map[statsKey]*statsEntry)}
}

// Record adds one provider outcome. Latency and cost count only on success.
func (t *StatsTracker) Record(provider string, task providers.TaskKind, success bool, latency time.Duration, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := statsKey{provider: provider, task: task}
	e, ok := t.entries[key]
	if !ok {
		e = &statsEntry{}
		t.entries[key] = e
	}
	e.requests++
	if success {
		e.successes++
		e.totalLatency += latency
		e.totalCost += cost
	}
}

// Snapshot returns the current stats ordered by provider then task
func (t *StatsTracker) Snapshot() []ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ProviderStats, 0, len(t.entries))
	for key, e := range t.entries {
		s := ProviderStats{
			Provider:  key.provider,
			Task:      key.task,
			Requests:  e.requests,
			Successes: e.successes,
			Failures:  e.requests - e.successes,
			TotalCost: e.totalCost,
		}
		if e.requests > 0 {
			s.SuccessRate = float64(e.successes) / float64(e.requests)
			s.FailureRate = float64(s.Failures) / float64(e.requests)
		}
		if e.successes > 0 {
			s.AvgLatencyMs = float64(e.totalLatency.Milliseconds()) / float64(e.successes)
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Task < out[j].Task
	})
	return out
}
