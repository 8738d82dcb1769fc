// Package model contains the command envelope, result, and persisted entity
// types shared between the controller, the orchestrator, and the stores.
package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

// CommandType identifies the operation a command performs and selects the
// orchestration that runs it.
type CommandType string

const (
	CommandProjectCreate CommandType = "project_create"
	CommandProjectUpdate CommandType = "project_update"
	CommandProjectDelete CommandType = "project_delete"

	CommandProjectUserCreate CommandType = "project_user_create"
	CommandProjectUserUpdate CommandType = "project_user_update"

	// Tenant-level user commands carry no project id and are not serialized.
	CommandTeamCloudUserCreate CommandType = "teamcloud_user_create"
	CommandTeamCloudUserUpdate CommandType = "teamcloud_user_update"
)

// Command is the immutable request envelope for one mutating operation.
// ProjectID is nil for tenant-level commands; those skip per-project
// serialization entirely.
type Command struct {
	CommandID uuid.UUID       `json:"command_id"`
	Type      CommandType     `json:"type"`
	ProjectID *uuid.UUID      `json:"project_id,omitempty"`
	User      *User           `json:"user"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewCommand builds a command for the given acting user.
// Every command must reference a non-nil user.
func NewCommand(commandType CommandType, user *User, payload interface{}) (*Command, error) {
	if user == nil {
		return nil, errors.New("command requires a user")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Command{
		CommandID: uuid.New(),
		Type:      commandType,
		User:      user,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// WithProject scopes the command to a project, opting it into the
// per-project serialization protocol.
func (c *Command) WithProject(projectID uuid.UUID) *Command {
	c.ProjectID = &projectID
	return c
}

// InstanceID returns the workflow instance id associated with this command.
// Command orchestrations always run under their command id, which is what
// makes status-by-correlation-id lookups work.
func (c *Command) InstanceID() string {
	return c.CommandID.String()
}

// CreateResult seeds the result object for this command: pending status,
// empty errors and links.
func (c *Command) CreateResult() *CommandResult {
	return &CommandResult{
		CommandID:     c.CommandID,
		CommandType:   c.Type,
		InstanceID:    c.InstanceID(),
		RuntimeStatus: RuntimeStatusPending,
		Links:         map[string]string{},
		CreatedAt:     c.CreatedAt,
	}
}

// UnmarshalPayload decodes the command payload into the given entity.
func (c *Command) UnmarshalPayload(v interface{}) error {
	if len(c.Payload) == 0 {
		return errors.New("command has no payload")
	}
	return json.Unmarshal(c.Payload, v)
}

// CommandMessage is the envelope placed on the dispatch queue. It carries the
// trace context so orchestration spans link back to the API request.
type CommandMessage struct {
	Command Command                `json:"command"`
	Trace   propagation.MapCarrier `json:"trace,omitempty"`
}
