package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// GetTeamCloudInstance returns the singleton tenant configuration document.
func (s *Store) GetTeamCloudInstance(ctx context.Context, tenant string) (*model.TeamCloudInstance, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM teamcloud WHERE tenant = $1", tenant).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var instance model.TeamCloudInstance
	if err := json.Unmarshal(doc, &instance); err != nil {
		return nil, fmt.Errorf("failed to decode teamcloud instance: %w", err)
	}
	return &instance, nil
}

// SetTeamCloudInstance upserts the tenant configuration document.
func (s *Store) SetTeamCloudInstance(ctx context.Context, tx store.DBTransaction, instance *model.TeamCloudInstance) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to encode teamcloud instance: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO teamcloud (tenant, document)
		VALUES ($1, $2)
		ON CONFLICT (tenant) DO UPDATE
		SET document = EXCLUDED.document, updated_at = NOW()
	`, instance.Tenant, doc)
	return err
}

// GetProjectType returns a project type document by id.
func (s *Store) GetProjectType(ctx context.Context, id string) (*model.ProjectType, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM project_types WHERE id = $1", id).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var projectType model.ProjectType
	if err := json.Unmarshal(doc, &projectType); err != nil {
		return nil, fmt.Errorf("failed to decode project type %s: %w", id, err)
	}
	return &projectType, nil
}

// GetDefaultProjectType returns the tenant's default project type.
func (s *Store) GetDefaultProjectType(ctx context.Context, tenant string) (*model.ProjectType, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM project_types WHERE tenant = $1 AND is_default = TRUE LIMIT 1",
		tenant,
	).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var projectType model.ProjectType
	if err := json.Unmarshal(doc, &projectType); err != nil {
		return nil, fmt.Errorf("failed to decode default project type: %w", err)
	}
	return &projectType, nil
}

// SetProjectType upserts a project type document.
func (s *Store) SetProjectType(ctx context.Context, tx store.DBTransaction, projectType *model.ProjectType) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(projectType)
	if err != nil {
		return fmt.Errorf("failed to encode project type: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO project_types (id, tenant, is_default, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET tenant = EXCLUDED.tenant,
		    is_default = EXCLUDED.is_default,
		    document = EXCLUDED.document,
		    updated_at = NOW()
	`, projectType.ID, projectType.Tenant, projectType.Default, doc)
	return err
}
