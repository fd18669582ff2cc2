package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus represents the lifecycle state of a generation
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// Generation records one generation request and its dispatch outcome
type Generation struct {
	ID     uuid.UUID        `json:"id" db:"id"`
	Type   string           `json:"type" db:"type"` // text, image, voice, video
	Status GenerationStatus `json:"status" db:"status"`

	// Routing options as requested
	Mode      string   `json:"mode" db:"mode"`
	Providers []string `json:"providers,omitempty" db:"providers"`

	// Outcome
	Provider       *string `json:"provider,omitempty" db:"provider"`
	Cost           float64 `json:"cost" db:"cost"`
	LatencyMs      int     `json:"latency_ms" db:"latency_ms"`
	TotalLatencyMs int     `json:"total_latency_ms" db:"total_latency_ms"`
	OutputURL      *string `json:"output_url,omitempty" db:"output_url"`

	// Request and response content
	Input  json.RawMessage `json:"input,omitempty" db:"input"`
	Output json.RawMessage `json:"output,omitempty" db:"output"`

	// Error handling
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TableName returns the table name for the Generation model
func (Generation) TableName() string {
	return "generations"
}

// NewGeneration creates a queued generation
func NewGeneration(taskType, mode string, providers []string, input json.RawMessage) *Generation {
	now := time.Now().UTC()
	return &Generation{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    GenerationStatusQueued,
		Mode:      mode,
		Providers: providers,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkAsProcessing marks the generation as dispatched
func (g *Generation) MarkAsProcessing() {
	g.Status = GenerationStatusProcessing
	g.UpdatedAt = time.Now().UTC()
}

// MarkAsCompleted records a successful dispatch
func (g *Generation) MarkAsCompleted(provider string, cost float64, latencyMs, totalLatencyMs int, outputURL string, output json.RawMessage) {
	g.Status = GenerationStatusCompleted
	g.Provider = &provider
	g.Cost = cost
	g.LatencyMs = latencyMs
	g.TotalLatencyMs = totalLatencyMs
	if outputURL != "" {
		g.OutputURL = &outputURL
	}
	g.Output = output
	g.ErrorMessage = nil
	g.touchCompleted()
}

// MarkAsFailed records a failed dispatch
func (g *Generation) MarkAsFailed(errorMessage string, totalLatencyMs int) {
	g.Status = GenerationStatusFailed
	g.ErrorMessage = &errorMessage
	g.TotalLatencyMs = totalLatencyMs
	g.touchCompleted()
}

func (g *Generation) touchCompleted() {
	now := time.Now().UTC()
	g.UpdatedAt = now
	g.CompletedAt = &now
}
