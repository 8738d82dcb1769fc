// Package azure abstracts the cloud resource operations the orchestrator
// performs: subscription ownership checks, resource groups, role
// assignments and key vault access. Production deployments plug in an ARM
// backed implementation; dev mode and tests use the in-memory one.
package azure

import (
	"context"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

// Built-in role definitions used for project resource access.
const (
	RoleOwner       = "Owner"
	RoleContributor = "Contributor"
)

// KeyVaultPermissions is the access-policy permission set for one principal.
type KeyVaultPermissions struct {
	Certificates []string `json:"certificates,omitempty"`
	Keys         []string `json:"keys,omitempty"`
	Secrets      []string `json:"secrets,omitempty"`
}

// AllCertificatePermissions etc. mirror the full permission sets granted to
// the orchestrator's own identity on project vaults.
var (
	AllCertificatePermissions = []string{"get", "list", "update", "create", "import", "delete", "recover", "backup", "restore", "managecontacts", "manageissuers", "getissuers", "listissuers", "setissuers", "deleteissuers"}
	AllKeyPermissions         = []string{"get", "list", "update", "create", "import", "delete", "recover", "backup", "restore", "decrypt", "encrypt", "unwrapKey", "wrapKey", "verify", "sign"}
	AllSecretPermissions      = []string{"get", "list", "set", "delete", "recover", "backup", "restore"}
	ReadOnlyPermissions       = []string{"get", "list"}
)

// ResourceService is the surface the orchestrator's activities need from the
// cloud. All operations are idempotent so activity retries are safe.
type ResourceService interface {
	// GetIdentity returns the principal id the orchestrator itself runs as.
	GetIdentity(ctx context.Context) (uuid.UUID, error)

	// HasSubscriptionAccess reports whether the orchestrator's identity can
	// manage the given subscription. Subscriptions without access contribute
	// zero capacity to pool selection.
	HasSubscriptionAccess(ctx context.Context, subscriptionID uuid.UUID) (bool, error)

	// CreateResourceGroup provisions (or re-affirms) a resource group.
	CreateResourceGroup(ctx context.Context, subscriptionID uuid.UUID, name, region string) (*model.ResourceGroup, error)

	// DeleteResourceGroup removes a resource group and everything in it.
	// Deleting a group that does not exist is a no-op.
	DeleteResourceGroup(ctx context.Context, subscriptionID uuid.UUID, name string) error

	// TagResourceGroup merges the given tags onto the resource group.
	TagResourceGroup(ctx context.Context, group *model.ResourceGroup, tags map[string]string) error

	// AssignRole grants the principal the given role on the resource group.
	// Repeated assignment of an existing role is a no-op.
	AssignRole(ctx context.Context, group *model.ResourceGroup, principalID uuid.UUID, role string) error

	// CreateKeyVault provisions (or re-affirms) a key vault inside the
	// resource group.
	CreateKeyVault(ctx context.Context, group *model.ResourceGroup, name string) (*model.KeyVault, error)

	// SetKeyVaultPolicy sets the access policy for a principal on the vault,
	// replacing any existing policy for that principal.
	SetKeyVaultPolicy(ctx context.Context, vault *model.KeyVault, principalID uuid.UUID, permissions KeyVaultPermissions) error

	// DeleteKeyVaultSecret removes a secret if present.
	DeleteKeyVaultSecret(ctx context.Context, vault *model.KeyVault, name string) error
}
