// Package memory provides repositories that keep records in process memory.
// They back the service when no database is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/repositories"
)

// GenerationRepository is a map-backed repositories.GenerationRepository
type GenerationRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.Generation
}

// NewGenerationRepository creates an empty repository
func NewGenerationRepository() *GenerationRepository {
	return &GenerationRepository{records: make(map[uuid.UUID]*models.Generation)}
}

// NewRepositories returns the in-memory repository set
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{Generations: NewGenerationRepository()}
}

// Create stores a copy of g
func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[g.ID]; exists {
		return fmt.Errorf("generation %s already exists", g.ID)
	}
	r.records[g.ID] = clone(g)
	return nil
}

// GetByID returns a copy of the stored generation
func (r *GenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("generation %s: %w", id, repositories.ErrNotFound)
	}
	return clone(g), nil
}

// Update replaces a non-terminal generation
func (r *GenerationRepository) Update(ctx context.Context, g *models.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[g.ID]
	if !ok {
		return fmt.Errorf("generation %s: %w", g.ID, repositories.ErrNotFound)
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("generation %s is %s: %w", g.ID, current.Status, repositories.ErrTerminalState)
	}
	r.records[g.ID] = clone(g)
	return nil
}

// List returns matching generations, newest first
func (r *GenerationRepository) List(ctx context.Context, filter repositories.GenerationFilter) ([]*models.Generation, error) {
	r.mu.RLock()
	matched := make([]*models.Generation, 0, len(r.records))
	for _, g := range r.records {
		if matches(g, filter) {
			matched = append(matched, clone(g))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*models.Generation{}, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matches(g *models.Generation, f repositories.GenerationFilter) bool {
	if f.Type != "" && g.Type != f.Type {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.Provider != "" && (g.Provider == nil || *g.Provider != f.Provider) {
		return false
	}
	return true
}

func clone(g *models.Generation) *models.Generation {
	c := *g
	if g.Providers != nil {
		c.Providers = append([]string(nil), g.Providers...)
	}
	c.Provider = cloneString(g.Provider)
	c.OutputURL = cloneString(g.OutputURL)
	c.ErrorMessage = cloneString(g.ErrorMessage)
	c.Input = cloneRaw(g.Input)
	c.Output = cloneRaw(g.Output)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
