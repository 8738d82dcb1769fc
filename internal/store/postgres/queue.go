package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// Dispatch policy
const (
	// VisibilityTimeout is how long a claimed instance stays invisible to
	// other workers before it is considered lost and redelivered.
	VisibilityTimeout = 5 * time.Minute
)

// Enqueue schedules an orchestration instance for dispatch.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, instanceID string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	if visibleAfter.IsZero() {
		visibleAfter = time.Now()
	}

	executor := s.getExecutor(tx)

	var id int64
	err := executor.QueryRowContext(ctx, `
		INSERT INTO command_queue (instance_id, payload, visible_after)
		VALUES ($1, $2, $3)
		RETURNING id
	`, instanceID, payload, visibleAfter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue instance %s: %w", instanceID, err)
	}

	return id, nil
}

// DequeueBatch claims up to 'limit' due instances atomically using
// SELECT ... FOR UPDATE SKIP LOCKED. Returns a nil slice if none are due.
func (s *Store) DequeueBatch(ctx context.Context, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, instance_id, payload, attempt
		FROM command_queue
		WHERE visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.QueueItem
	var queueIDs []int64
	var instanceIDs []string

	for rows.Next() {
		var queueID int64
		var item store.QueueItem
		if err := rows.Scan(&queueID, &item.InstanceID, &item.Payload, &item.Attempt); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		items = append(items, item)
		queueIDs = append(queueIDs, queueID)
		instanceIDs = append(instanceIDs, item.InstanceID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	// Claim: push visibility out and count the delivery.
	_, err = tx.ExecContext(ctx, `
		UPDATE command_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), attempt = attempt + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(queueIDs))
	if err != nil {
		return nil, fmt.Errorf("batch visibility update failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE instances
		SET runtime_status = $1, updated_at = NOW()
		WHERE instance_id = ANY($2)
	`, model.RuntimeStatusRunning, pq.Array(instanceIDs))
	if err != nil {
		return nil, fmt.Errorf("batch status update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// Complete removes a finished instance from the queue.
func (s *Store) Complete(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM command_queue WHERE instance_id = $1", instanceID)
	return err
}

// Reschedule re-arms an instance to run again after the given time. The
// attempt counter resets because a rescheduled run is a new logical
// execution, not a redelivery.
func (s *Store) Reschedule(ctx context.Context, instanceID string, visibleAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE command_queue
		SET visible_after = $1, attempt = 0
		WHERE instance_id = $2
	`, visibleAfter, instanceID)
	return err
}

// SetVisibleAfter extends the heartbeat.
func (s *Store) SetVisibleAfter(ctx context.Context, instanceID string, visibleAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE command_queue
		SET visible_after = $1
		WHERE instance_id = $2
	`, visibleAfter, instanceID)
	return err
}

// Count tracks count of items in the queue.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_queue").Scan(&count)
	return count, err
}
