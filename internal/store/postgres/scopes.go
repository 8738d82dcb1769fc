package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// SetDeploymentScope upserts a deployment scope document.
func (s *Store) SetDeploymentScope(ctx context.Context, tx store.DBTransaction, scope *model.DeploymentScope) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("failed to encode deployment scope: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO deployment_scopes (id, tenant, is_default, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET tenant = EXCLUDED.tenant,
		    is_default = EXCLUDED.is_default,
		    document = EXCLUDED.document,
		    updated_at = NOW()
	`, scope.ID, scope.Tenant, scope.Default, doc)
	return err
}

// GetDefaultDeploymentScope returns the tenant's default deployment scope.
func (s *Store) GetDefaultDeploymentScope(ctx context.Context, tenant string) (*model.DeploymentScope, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM deployment_scopes WHERE tenant = $1 AND is_default = TRUE LIMIT 1",
		tenant,
	).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var scope model.DeploymentScope
	if err := json.Unmarshal(doc, &scope); err != nil {
		return nil, fmt.Errorf("failed to decode default deployment scope: %w", err)
	}
	return &scope, nil
}
