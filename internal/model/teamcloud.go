package model

import (
	"github.com/google/uuid"
)

// TeamCloudInstance is the singleton tenant-level configuration document.
// Its tags and properties act as defaults inherited by every new project.
type TeamCloudInstance struct {
	ID         string            `json:"id"`
	Tenant     string            `json:"tenant"`
	Providers  []Provider        `json:"providers,omitempty"`
	Users      []User            `json:"users,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Provider is a registered external service that performs part of project
// provisioning on receipt of a provider command.
type Provider struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	AuthCode    string            `json:"auth_code,omitempty"`
	PrincipalID *uuid.UUID        `json:"principal_id,omitempty"`
	Registered  bool              `json:"registered,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ProvidersByID resolves the given provider references against the
// instance's registered providers, keeping input order. Unknown references
// are skipped.
func (t *TeamCloudInstance) ProvidersByID(refs []ProviderReference) []Provider {
	var providers []Provider
	for _, ref := range refs {
		for _, p := range t.Providers {
			if p.ID == ref.ID {
				providers = append(providers, p)
				break
			}
		}
	}
	return providers
}

// ProjectCommandNotification is the coordination record the serialization
// protocol hands to the monitoring orchestration: which instance is waiting,
// and which command it is waiting on.
type ProjectCommandNotification struct {
	PendingInstanceID string    `json:"pending_instance_id"`
	ActiveCommandID   uuid.UUID `json:"active_command_id"`
}
