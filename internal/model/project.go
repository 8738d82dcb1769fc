package model

import (
	"time"

	"github.com/google/uuid"
)

// Project is the persisted record for one provisioned environment.
// Orchestrations are the only writers while a workflow runs; the store
// applies each write as its own atomic upsert.
type Project struct {
	ID            uuid.UUID         `json:"id"`
	Tenant        string            `json:"tenant"`
	Name          string            `json:"name"`
	Type          ProjectType       `json:"type"`
	ResourceGroup *ResourceGroup    `json:"resource_group,omitempty"`
	KeyVault      *KeyVault         `json:"key_vault,omitempty"`
	Users         []User            `json:"users,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ProjectType describes how projects of this type are provisioned:
// which subscriptions they may land on, how many instances each
// subscription may hold, and which providers take part.
type ProjectType struct {
	ID                   string              `json:"id"`
	Tenant               string              `json:"tenant"`
	Region               string              `json:"region"`
	Subscriptions        []uuid.UUID         `json:"subscriptions"`
	SubscriptionCapacity int                 `json:"subscription_capacity"`
	Providers            []ProviderReference `json:"providers,omitempty"`
	Tags                 map[string]string   `json:"tags,omitempty"`
	Properties           map[string]string   `json:"properties,omitempty"`
	Default              bool                `json:"default,omitempty"`
}

// ProviderReference names a provider participating in a project type.
type ProviderReference struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ResourceGroup is the cloud resource group backing a project.
type ResourceGroup struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Region         string    `json:"region"`
}

// KeyVault references the vault holding a project's secrets.
type KeyVault struct {
	VaultID   string `json:"vault_id"`
	VaultName string `json:"vault_name"`
	VaultURL  string `json:"vault_url,omitempty"`
}

// DeploymentScope is a named boundary (management group or subscription set)
// that project deployments may target.
type DeploymentScope struct {
	ID              uuid.UUID         `json:"id"`
	Tenant          string            `json:"tenant"`
	Name            string            `json:"name"`
	Subscriptions   []uuid.UUID       `json:"subscriptions,omitempty"`
	ManagementGroup string            `json:"management_group,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
	Default         bool              `json:"default,omitempty"`
}

// MergeTags layers override tags on top of base tags. Base values act as
// defaults; override values win on conflicts.
func MergeTags(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// MergeProperties mirrors MergeTags for the free-form property bag.
func MergeProperties(base, override map[string]string) map[string]string {
	return MergeTags(base, override)
}
