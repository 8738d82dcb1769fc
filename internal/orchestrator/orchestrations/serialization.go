package orchestrations

import (
	"context"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// waitForPrevious runs the per-project command serialization protocol.
// Tenant-level commands pass straight through. Project commands register
// themselves as the project's active command; if a predecessor is still
// running, the caller blocks until the monitor signals its completion.
func (s *Service) waitForPrevious(ctx *workflow.Context, cmd *model.Command) error {
	if cmd.ProjectID == nil {
		return nil
	}

	previous, err := s.registerActiveCommand(ctx.Context(), *cmd.ProjectID, cmd.CommandID)
	if err != nil {
		return err
	}
	if previous == nil {
		return nil
	}

	notification := model.ProjectCommandNotification{
		PendingInstanceID: ctx.InstanceID(),
		ActiveCommandID:   *previous,
	}
	payload, err := marshalJSON(notification)
	if err != nil {
		return err
	}

	monitor := &store.Instance{InstanceID: "monitor-" + uuid.NewString()}
	if err := ctx.StartOrchestration(NameCommandMonitor, monitor, payload); err != nil {
		return err
	}

	ctx.SetCustomStatus("Waiting for command " + previous.String())
	ctx.Logger().Info("waiting for active command to finish",
		"project_id", cmd.ProjectID,
		"active_command_id", previous)

	return ctx.WaitForEvent(previous.String())
}

// registerActiveCommand updates the project's active-command slot under a
// row lock. The returned id is the predecessor to wait on, or nil when the
// slot was free, already final, or held by this same command (redelivery).
// The slot is always overwritten: the latest registrant wins, which is what
// lets a lost instance be displaced instead of deadlocking its successors.
func (s *Service) registerActiveCommand(ctx context.Context, projectID, commandID uuid.UUID) (*uuid.UUID, error) {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	active, err := s.Entities.GetActiveCommandForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}

	var previous *uuid.UUID
	if active != nil && *active != commandID {
		status, err := s.Engine.GetStatus(ctx, active.String())
		switch {
		case err != nil:
			// Unobservable status counts as done rather than blocking the
			// project forever.
			s.Log.Warn("active command status unavailable, treating slot as free",
				"project_id", projectID,
				"active_command_id", active,
				"error", err)
		case status.IsActive():
			previous = active
		}
	}

	if err := s.Entities.SetActiveCommand(ctx, tx, projectID, commandID); err != nil {
		return nil, err
	}

	return previous, tx.Commit()
}
