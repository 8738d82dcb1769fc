package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProviderCommand is the downstream command an orchestration sends to a
// registered provider. It correlates back to the originating command so the
// provider's callback can be matched.
type ProviderCommand struct {
	CommandID  uuid.UUID       `json:"command_id"`
	ProviderID string          `json:"provider_id"`
	Type       CommandType     `json:"type"`
	User       User            `json:"user"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewProviderCommand converts an internal command into its provider-facing
// form for the given provider.
func NewProviderCommand(cmd *Command, provider Provider) ProviderCommand {
	return ProviderCommand{
		CommandID:  cmd.CommandID,
		ProviderID: provider.ID,
		Type:       cmd.Type,
		User:       *cmd.User,
		Payload:    cmd.Payload,
		CreatedAt:  time.Now().UTC(),
	}
}

// ProviderOutput carries the fields a provider reports back after handling a
// provider command. Properties are merged into the project before it is
// persisted.
type ProviderOutput struct {
	ProviderID string            `json:"provider_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ProviderCommandResult is one provider's outcome for a provider command.
type ProviderCommandResult struct {
	CommandID     uuid.UUID      `json:"command_id"`
	ProviderID    string         `json:"provider_id"`
	RuntimeStatus RuntimeStatus  `json:"runtime_status"`
	Output        ProviderOutput `json:"output"`
	Errors        []CommandError `json:"errors,omitempty"`
}
