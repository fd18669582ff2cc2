package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/gen-orchestrator/models"
	"github.com/upb/gen-orchestrator/repositories"
	"go.uber.org/zap"
)

const generationColumns = `id, type, status, mode, providers, provider, cost, latency_ms,
	total_latency_ms, output_url, input, output, error_message,
	created_at, updated_at, completed_at`

// GenerationRepository implements repositories.GenerationRepository
type GenerationRepository struct {
	db     *DB
	tm     *TransactionManager
	logger *zap.Logger
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(db *DB, logger *zap.Logger) *GenerationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationRepository{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Create inserts a new generation
func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	query := `
		INSERT INTO generations (` + generationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		g.ID,
		g.Type,
		g.Status,
		g.Mode,
		pq.Array(g.Providers),
		g.Provider,
		g.Cost,
		g.LatencyMs,
		g.TotalLatencyMs,
		g.OutputURL,
		jsonArg(g.Input),
		jsonArg(g.Output),
		g.ErrorMessage,
		g.CreatedAt,
		g.UpdatedAt,
		g.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create generation: %w", err)
	}

	r.logger.Debug("generation created", zap.String("id", g.ID.String()), zap.String("type", g.Type))
	return nil
}

// GetByID retrieves a generation by ID
func (r *GenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	g, err := scanGeneration(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return g, nil
}

// Update overwrites the mutable columns of a generation. The row is locked
// first so a completed or failed record is never overwritten.
func (r *GenerationRepository) Update(ctx context.Context, g *models.Generation) error {
	return r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		var current models.GenerationStatus
		err := executor.QueryRowContext(ctx,
			`SELECT status FROM generations WHERE id = $1 FOR UPDATE`, g.ID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("generation %s: %w", g.ID, repositories.ErrNotFound)
			}
			return fmt.Errorf("failed to lock generation: %w", err)
		}
		if current.IsTerminal() {
			return fmt.Errorf("generation %s is %s: %w", g.ID, current, repositories.ErrTerminalState)
		}

		query := `
			UPDATE generations
			SET status = $2, provider = $3, cost = $4, latency_ms = $5, total_latency_ms = $6,
			    output_url = $7, output = $8, error_message = $9, updated_at = $10, completed_at = $11
			WHERE id = $1
		`
		_, err = executor.ExecContext(ctx, query,
			g.ID,
			g.Status,
			g.Provider,
			g.Cost,
			g.LatencyMs,
			g.TotalLatencyMs,
			g.OutputURL,
			jsonArg(g.Output),
			g.ErrorMessage,
			g.UpdatedAt,
			g.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update generation: %w", err)
		}

		r.logger.Debug("generation updated", zap.String("id", g.ID.String()), zap.String("status", string(g.Status)))
		return nil
	})
}

// List retrieves generations matching filter, newest first
func (r *GenerationRepository) List(ctx context.Context, filter repositories.GenerationFilter) ([]*models.Generation, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Type != "" {
		add("type", filter.Type)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Provider != "" {
		add("provider", filter.Provider)
	}

	query := `SELECT ` + generationColumns + ` FROM generations`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.EffectiveLimit(), filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var out []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row rowScanner) (*models.Generation, error) {
	g := &models.Generation{}
	var input, output []byte

	err := row.Scan(
		&g.ID,
		&g.Type,
		&g.Status,
		&g.Mode,
		pq.Array(&g.Providers),
		&g.Provider,
		&g.Cost,
		&g.LatencyMs,
		&g.TotalLatencyMs,
		&g.OutputURL,
		&input,
		&output,
		&g.ErrorMessage,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(input) > 0 {
		g.Input = json.RawMessage(input)
	}
	if len(output) > 0 {
		g.Output = json.RawMessage(output)
	}
	return g, nil
}

// jsonArg passes JSONB as text; lib/pq sends []byte as bytea.
func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
