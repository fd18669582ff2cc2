package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/gen-orchestrator/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ErrTerminalState is returned when updating a record that already completed or failed
var ErrTerminalState = errors.New("record is in a terminal state")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// GenerationFilter narrows a generation listing
type GenerationFilter struct {
	Type     string
	Status   models.GenerationStatus
	Provider string
	Limit    int
	Offset   int
}

// DefaultListLimit is used when a filter does not set a limit
const DefaultListLimit = 50

// EffectiveLimit returns the filter limit or the default
func (f GenerationFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// GenerationRepository handles generation record operations
type GenerationRepository interface {
	// Create stores a new generation
	Create(ctx context.Context, g *models.Generation) error

	// GetByID retrieves a generation by ID, returning ErrNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)

	// Update overwrites a non-terminal generation, returning ErrTerminalState otherwise
	Update(ctx context.Context, g *models.Generation) error

	// List retrieves generations newest first
	List(ctx context.Context, filter GenerationFilter) ([]*models.Generation, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Generations GenerationRepository
}
