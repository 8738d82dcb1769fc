package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// GetProject returns a project document by id.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM projects WHERE id = $1", id).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var project model.Project
	if err := json.Unmarshal(doc, &project); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return &project, nil
}

// AddProject inserts a new project document.
func (s *Store) AddProject(ctx context.Context, tx store.DBTransaction, project *model.Project) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO projects (id, tenant, type_id, subscription_id, document)
		VALUES ($1, $2, $3, $4, $5)
	`, project.ID, project.Tenant, project.Type.ID, subscriptionOf(project), doc)
	if err != nil {
		return fmt.Errorf("failed to add project %s: %w", project.ID, err)
	}
	return nil
}

// SetProject upserts a project document as one atomic write.
func (s *Store) SetProject(ctx context.Context, tx store.DBTransaction, project *model.Project) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO projects (id, tenant, type_id, subscription_id, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET tenant = EXCLUDED.tenant,
		    type_id = EXCLUDED.type_id,
		    subscription_id = EXCLUDED.subscription_id,
		    document = EXCLUDED.document,
		    updated_at = NOW()
	`, project.ID, project.Tenant, project.Type.ID, subscriptionOf(project), doc)
	if err != nil {
		return fmt.Errorf("failed to set project %s: %w", project.ID, err)
	}
	return nil
}

// RemoveProject deletes a project document. Removing a project that is
// already gone is not an error.
func (s *Store) RemoveProject(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	return err
}

// ListProjects returns all project documents for a tenant.
func (s *Store) ListProjects(ctx context.Context, tenant string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT document FROM projects WHERE tenant = $1 ORDER BY created_at ASC", tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var project model.Project
		if err := json.Unmarshal(doc, &project); err != nil {
			return nil, fmt.Errorf("failed to decode project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// GetInstanceCount returns how many projects of the given type currently
// occupy the given subscription.
func (s *Store) GetInstanceCount(ctx context.Context, projectTypeID string, subscriptionID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects WHERE type_id = $1 AND subscription_id = $2",
		projectTypeID, subscriptionID,
	).Scan(&count)
	return count, err
}

// subscriptionOf extracts the queryable subscription column from the
// project's resource group, if provisioned yet.
func subscriptionOf(project *model.Project) interface{} {
	if project.ResourceGroup == nil {
		return nil
	}
	return project.ResourceGroup.SubscriptionID
}
