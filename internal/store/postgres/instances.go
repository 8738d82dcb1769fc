package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// CreateInstance inserts the initial record for an orchestration instance.
func (s *Store) CreateInstance(ctx context.Context, tx store.DBTransaction, instance *store.Instance) error {
	executor := s.getExecutor(tx)

	var command []byte
	if instance.Command != nil {
		raw, err := json.Marshal(instance.Command)
		if err != nil {
			return fmt.Errorf("failed to encode command: %w", err)
		}
		command = raw
	}

	_, err := executor.ExecContext(ctx, `
		INSERT INTO instances (instance_id, orchestration, command, runtime_status, custom_status)
		VALUES ($1, $2, $3, $4, $5)
	`, instance.InstanceID, instance.Orchestration, command, instance.RuntimeStatus, instance.CustomStatus)
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", instance.InstanceID, err)
	}
	return nil
}

// GetInstance returns an instance record, or sql.ErrNoRows if unknown.
func (s *Store) GetInstance(ctx context.Context, instanceID string) (*store.Instance, error) {
	var (
		instance store.Instance
		command  []byte
		output   []byte
		errs     []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT instance_id, orchestration, command, runtime_status, custom_status, output, errors, created_at, updated_at
		FROM instances
		WHERE instance_id = $1
	`, instanceID).Scan(
		&instance.InstanceID, &instance.Orchestration, &command,
		&instance.RuntimeStatus, &instance.CustomStatus, &output, &errs,
		&instance.CreatedAt, &instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(command) > 0 {
		var cmd model.Command
		if err := json.Unmarshal(command, &cmd); err != nil {
			return nil, fmt.Errorf("failed to decode command for instance %s: %w", instanceID, err)
		}
		instance.Command = &cmd
	}
	instance.Output = output
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &instance.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors for instance %s: %w", instanceID, err)
		}
	}

	return &instance, nil
}

// SetInstanceStatus updates an instance's runtime status.
func (s *Store) SetInstanceStatus(ctx context.Context, instanceID string, status model.RuntimeStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances SET runtime_status = $1, updated_at = NOW() WHERE instance_id = $2
	`, status, instanceID)
	return err
}

// SetInstanceCustomStatus publishes free-form progress text for an instance.
func (s *Store) SetInstanceCustomStatus(ctx context.Context, instanceID string, customStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances SET custom_status = $1, updated_at = NOW() WHERE instance_id = $2
	`, customStatus, instanceID)
	return err
}

// SetInstanceOutput commits output, errors, and runtime status in one write.
func (s *Store) SetInstanceOutput(ctx context.Context, instanceID string, status model.RuntimeStatus, output json.RawMessage, errs []model.CommandError) error {
	var encoded []byte
	if len(errs) > 0 {
		raw, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("failed to encode errors: %w", err)
		}
		encoded = raw
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET runtime_status = $1, output = $2, errors = $3, updated_at = NOW()
		WHERE instance_id = $4
	`, status, []byte(output), encoded, instanceID)
	return err
}
