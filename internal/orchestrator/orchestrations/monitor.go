package orchestrations

import (
	"encoding/json"
	"time"

	"projectplane/internal/model"
	"projectplane/internal/workflow"
)

// DefaultMonitorPollInterval is how often a monitor re-checks the command
// it watches.
const DefaultMonitorPollInterval = 5 * time.Second

func (s *Service) monitorPollInterval() time.Duration {
	if s.MonitorPollInterval > 0 {
		return s.MonitorPollInterval
	}
	return DefaultMonitorPollInterval
}

// commandMonitor watches an active command on behalf of a pending one. As
// long as the watched command is active it re-arms itself; once the command
// turns final (or can no longer be resolved) it raises the release signal
// the pending instance is waiting on and completes.
func (s *Service) commandMonitor(ctx *workflow.Context, input json.RawMessage) error {
	var notification model.ProjectCommandNotification
	if err := json.Unmarshal(input, &notification); err != nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "malformed monitor notification: " + err.Error()}
	}

	status, err := s.Engine.GetStatus(ctx.Context(), notification.ActiveCommandID.String())
	if err == nil && status.IsActive() {
		return ctx.ContinueAsNew(s.monitorPollInterval())
	}
	if err != nil {
		ctx.Logger().Warn("watched command unresolvable, releasing waiter",
			"active_command_id", notification.ActiveCommandID,
			"error", err)
	}

	return s.Engine.RaiseEvent(ctx.Context(), notification.PendingInstanceID, notification.ActiveCommandID.String())
}
