package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"projectplane/internal/store"
)

// GetActiveCommandForUpdate reads the per-project active command pointer and
// locks the project's entity row for the remainder of the transaction. The
// row is created on first use. Callers must pass an open transaction; the
// read-modify-write of the pointer is the protocol's critical section.
func (s *Store) GetActiveCommandForUpdate(ctx context.Context, tx store.DBTransaction, projectID uuid.UUID) (*uuid.UUID, error) {
	if tx == nil {
		return nil, fmt.Errorf("entity read requires a transaction")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO command_entities (project_id) VALUES ($1)
		ON CONFLICT (project_id) DO NOTHING
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure entity row for project %s: %w", projectID, err)
	}

	var active uuid.NullUUID
	err = tx.QueryRowContext(ctx, `
		SELECT active_command_id FROM command_entities WHERE project_id = $1 FOR UPDATE
	`, projectID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to lock entity row for project %s: %w", projectID, err)
	}

	if !active.Valid {
		return nil, nil
	}
	return &active.UUID, nil
}

// SetActiveCommand overwrites the per-project active command pointer.
func (s *Store) SetActiveCommand(ctx context.Context, tx store.DBTransaction, projectID, commandID uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE command_entities
		SET active_command_id = $1, updated_at = NOW()
		WHERE project_id = $2
	`, commandID, projectID)
	return err
}
