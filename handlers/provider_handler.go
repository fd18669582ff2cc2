package handlers

import (
	"net/http"

	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/routing"
	"github.com/upb/gen-orchestrator/utils"
	"go.uber.org/zap"
)

// ProvidersResponse describes the registered providers and routing defaults
type ProvidersResponse struct {
	Providers   []string                        `json:"providers"`
	Policy      map[providers.TaskKind][]string `json:"policy"`
	DefaultMode routing.ExecutionMode           `json:"default_mode"`
	MaxRetries  int                             `json:"max_retries"`
}

// RoutingInfo exposes the dispatcher state served by ProviderHandler
type RoutingInfo interface {
	Registry() *providers.Registry
	Policy() *routing.Policy
	Config() routing.Config
	Stats() []routing.ProviderStats
}

// ProviderHandler serves provider registry and statistics endpoints
type ProviderHandler struct {
	routing RoutingInfo
	logger  *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(info RoutingInfo, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		routing: info,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cfg := h.routing.Config()
	resp := ProvidersResponse{
		Providers:   h.routing.Registry().List(),
		Policy:      h.routing.Policy().Table(),
		DefaultMode: cfg.DefaultMode,
		MaxRetries:  cfg.MaxRetries,
	}

	if err := utils.WriteOK(w, resp); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("failed to write response", zap.Error(err))
	}
}

// HandleStats handles GET /api/v1/providers/stats. The optional provider and
// task query parameters narrow the result.
func (h *ProviderHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	task := r.URL.Query().Get("task")

	var kind providers.TaskKind
	if task != "" {
		parsed, err := providers.ParseTaskKind(task)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		kind = parsed
	}

	stats := make([]routing.ProviderStats, 0)
	for _, s := range h.routing.Stats() {
		if provider != "" && s.Provider != provider {
			continue
		}
		if kind != "" && s.Task != kind {
			continue
		}
		stats = append(stats, s)
	}

	if err := utils.WriteOK(w, stats); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("failed to write response", zap.Error(err))
	}
}
