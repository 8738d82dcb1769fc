package activities

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"projectplane/internal/azure"
	"projectplane/internal/logger"
	"projectplane/internal/model"
)

// ResourceGroupCreateInput provisions the project's resource group on the
// selected subscription.
type ResourceGroupCreateInput struct {
	ProjectID      uuid.UUID `json:"project_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Region         string    `json:"region"`
}

// ResourceGroupInput carries an existing resource group.
type ResourceGroupInput struct {
	ResourceGroup model.ResourceGroup `json:"resource_group"`
}

// ResourceGroupTagInput merges tags onto a resource group.
type ResourceGroupTagInput struct {
	ResourceGroup model.ResourceGroup `json:"resource_group"`
	Tags          map[string]string   `json:"tags"`
}

// ResourcesAccessInput grants resource access for a project: the
// orchestrator identity gets ownership, every listed principal gets
// contributor rights and read access to the vault.
type ResourcesAccessInput struct {
	ResourceGroup model.ResourceGroup `json:"resource_group"`
	ProjectID     uuid.UUID           `json:"project_id"`
	PrincipalIDs  []uuid.UUID         `json:"principal_ids,omitempty"`
}

// KeyVaultSecretDeleteInput removes one secret from a project vault.
type KeyVaultSecretDeleteInput struct {
	KeyVault model.KeyVault `json:"key_vault"`
	Name     string         `json:"name"`
}

// ResourceGroupName derives the canonical group name for a project.
func ResourceGroupName(projectID uuid.UUID) string {
	return "prj-" + projectID.String()
}

// KeyVaultName derives the project vault name. Vault names are capped at 24
// characters, so the project id is compacted.
func KeyVaultName(projectID uuid.UUID) string {
	compact := strings.ReplaceAll(projectID.String(), "-", "")
	return "prj" + compact[:21]
}

func (a *Activities) resourceGroupCreate(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[ResourceGroupCreateInput](input)
	if err != nil {
		return nil, err
	}

	group, err := a.Azure.CreateResourceGroup(ctx, in.SubscriptionID, ResourceGroupName(in.ProjectID), in.Region)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, a.Log).Info("resource group provisioned",
		"project_id", in.ProjectID,
		"resource_group", group.Name,
		"subscription_id", in.SubscriptionID)
	return group, nil
}

func (a *Activities) resourceGroupDelete(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[ResourceGroupInput](input)
	if err != nil {
		return nil, err
	}
	return nil, a.Azure.DeleteResourceGroup(ctx, in.ResourceGroup.SubscriptionID, in.ResourceGroup.Name)
}

func (a *Activities) resourceGroupTag(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[ResourceGroupTagInput](input)
	if err != nil {
		return nil, err
	}
	if len(in.Tags) == 0 {
		return nil, nil
	}
	return nil, a.Azure.TagResourceGroup(ctx, &in.ResourceGroup, in.Tags)
}

// resourcesAccess creates the project vault and wires up access: the
// orchestrator identity holds Owner plus the full vault permission set,
// everyone else gets Contributor and read-only vault access.
func (a *Activities) resourcesAccess(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[ResourcesAccessInput](input)
	if err != nil {
		return nil, err
	}

	identity, err := a.Azure.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}

	vault, err := a.Azure.CreateKeyVault(ctx, &in.ResourceGroup, KeyVaultName(in.ProjectID))
	if err != nil {
		return nil, err
	}

	if err := a.Azure.AssignRole(ctx, &in.ResourceGroup, identity, azure.RoleOwner); err != nil {
		return nil, err
	}
	if err := a.Azure.SetKeyVaultPolicy(ctx, vault, identity, azure.KeyVaultPermissions{
		Certificates: azure.AllCertificatePermissions,
		Keys:         azure.AllKeyPermissions,
		Secrets:      azure.AllSecretPermissions,
	}); err != nil {
		return nil, err
	}

	for _, principalID := range in.PrincipalIDs {
		if principalID == identity {
			continue
		}
		if err := a.Azure.AssignRole(ctx, &in.ResourceGroup, principalID, azure.RoleContributor); err != nil {
			return nil, err
		}
		if err := a.Azure.SetKeyVaultPolicy(ctx, vault, principalID, azure.KeyVaultPermissions{
			Certificates: azure.ReadOnlyPermissions,
			Keys:         azure.ReadOnlyPermissions,
			Secrets:      azure.ReadOnlyPermissions,
		}); err != nil {
			return nil, err
		}
	}

	return vault, nil
}

func (a *Activities) keyVaultSecretDelete(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[KeyVaultSecretDeleteInput](input)
	if err != nil {
		return nil, err
	}
	return nil, a.Azure.DeleteKeyVaultSecret(ctx, &in.KeyVault, in.Name)
}
