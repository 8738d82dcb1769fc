package postgres

import (
	"context"
)

// RaiseSignal records an external-event signal for an instance. Raising the
// same signal twice is a no-op.
func (s *Store) RaiseSignal(ctx context.Context, instanceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (instance_id, name) VALUES ($1, $2)
		ON CONFLICT (instance_id, name) DO NOTHING
	`, instanceID, name)
	return err
}

// ConsumeSignal atomically removes a signal if present, reporting whether it
// existed.
func (s *Store) ConsumeSignal(ctx context.Context, instanceID, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM signals WHERE instance_id = $1 AND name = $2
	`, instanceID, name)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
