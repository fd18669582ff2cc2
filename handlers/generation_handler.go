package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/gen-orchestrator/internal/observability"
	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/repositories"
	"github.com/upb/gen-orchestrator/services/generation"
	"github.com/upb/gen-orchestrator/services/providers"
	"github.com/upb/gen-orchestrator/services/routing"
	"github.com/upb/gen-orchestrator/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the body of POST /api/v1/generations/{kind}
type GenerateRequest struct {
	Payload    map[string]any `json:"payload"`
	Providers  []string       `json:"providers,omitempty" validate:"omitempty,max=16,dive,provider_id"`
	Mode       string         `json:"mode,omitempty" validate:"omitempty,oneof=sequential parallel failover race"`
	MaxRetries int            `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	Async      bool           `json:"async,omitempty"`
}

// GenerateResponse pairs the stored record with the dispatch result
type GenerateResponse struct {
	Generation *models.Generation `json:"generation"`
	Result     *routing.Envelope  `json:"result,omitempty"`
}

// GenerationService defines the generation operations the handler needs
type GenerationService interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Outcome, error)
	Submit(ctx context.Context, req generation.Request) (*models.Generation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	List(ctx context.Context, filter repositories.GenerationFilter) ([]*models.Generation, error)
}

// GenerationHandler handles generation HTTP requests
type GenerationHandler struct {
	service GenerationService
	logger  *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(service GenerationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerate handles POST /api/v1/generations/{kind}.
// Synchronous requests answer 200 with the envelope, including failed
// envelopes. Async requests answer 202 with the queued record.
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)

	var body GenerateRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(&body); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	req := generation.Request{
		Kind:       chi.URLParam(r, "kind"),
		Payload:    providers.Payload(body.Payload),
		Providers:  body.Providers,
		Mode:       body.Mode,
		MaxRetries: body.MaxRetries,
	}

	if body.Async {
		g, err := h.service.Submit(ctx, req)
		if err != nil {
			HandleServiceError(w, err, logger)
			return
		}
		if err := utils.WriteAccepted(w, GenerateResponse{Generation: g}); err != nil {
			logger.Error("failed to write response", zap.Error(err))
		}
		return
	}

	out, err := h.service.Generate(ctx, req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("generation finished",
		zap.String("generation_id", out.Generation.ID.String()),
		zap.String("status", string(out.Envelope.Status)),
		zap.String("provider", out.Envelope.Provider))

	if err := utils.WriteOK(w, GenerateResponse{Generation: out.Generation, Result: out.Envelope}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/generations/{id}
func (h *GenerationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	g, err := h.service.Get(ctx, id)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, g); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleList handles GET /api/v1/generations?type=&status=&provider=&limit=&offset=
func (h *GenerationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)

	filter, err := parseGenerationFilter(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	list, err := h.service.List(ctx, filter)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, list); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

func parseGenerationFilter(r *http.Request) (repositories.GenerationFilter, error) {
	q := r.URL.Query()
	filter := repositories.GenerationFilter{
		Type:     q.Get("type"),
		Status:   models.GenerationStatus(q.Get("status")),
		Provider: q.Get("provider"),
	}

	if kind := filter.Type; kind != "" {
		parsed, err := providers.ParseTaskKind(kind)
		if err != nil {
			return filter, err
		}
		filter.Type = parsed.String()
	}

	switch filter.Status {
	case "", models.GenerationStatusQueued, models.GenerationStatusProcessing,
		models.GenerationStatusCompleted, models.GenerationStatusFailed:
	default:
		return filter, &utils.ValidationError{Message: "invalid status " + strconv.Quote(string(filter.Status))}
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &utils.ValidationError{Message: "invalid integer " + strconv.Quote(s)}
	}
	return n, nil
}
