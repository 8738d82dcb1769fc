package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// GetUser returns a user document by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM users WHERE id = $1", id).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var user model.User
	if err := json.Unmarshal(doc, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	return &user, nil
}

// AddUser inserts a new user document.
func (s *Store) AddUser(ctx context.Context, tx store.DBTransaction, user *model.User) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO users (id, tenant, role, document)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Tenant, user.Role, doc)
	if err != nil {
		return fmt.Errorf("failed to add user %s: %w", user.ID, err)
	}
	return nil
}

// SetUser upserts a user document as one atomic write.
func (s *Store) SetUser(ctx context.Context, tx store.DBTransaction, user *model.User) error {
	executor := s.getExecutor(tx)

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO users (id, tenant, role, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET tenant = EXCLUDED.tenant,
		    role = EXCLUDED.role,
		    document = EXCLUDED.document,
		    updated_at = NOW()
	`, user.ID, user.Tenant, user.Role, doc)
	if err != nil {
		return fmt.Errorf("failed to set user %s: %w", user.ID, err)
	}
	return nil
}

// RemoveUser deletes a user document.
func (s *Store) RemoveUser(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	return err
}

// ListAdmins returns all users with the teamcloud admin role in a tenant.
func (s *Store) ListAdmins(ctx context.Context, tenant string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT document FROM users WHERE tenant = $1 AND role = $2 ORDER BY created_at ASC",
		tenant, model.UserRoleAdmin,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []model.User
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var user model.User
		if err := json.Unmarshal(doc, &user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		admins = append(admins, user)
	}
	return admins, rows.Err()
}
