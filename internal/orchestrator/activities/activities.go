// Package activities contains the leaf operations command orchestrations
// are composed of. Every activity is idempotent so the per-operation retry
// policies can replay it safely.
package activities

import (
	"errors"
	"log/slog"
	"time"

	"projectplane/internal/azure"
	"projectplane/internal/model"
	"projectplane/internal/provider"
	"projectplane/internal/retry"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// Activity names double as retry-policy registry keys and as the
// "retries.<name>" configuration section for overrides.
const (
	NameProjectGet    = "project_get"
	NameProjectSet    = "project_set"
	NameProjectRemove = "project_remove"
	NameTeamCloudGet  = "teamcloud_get"
	NameSystemUserGet = "system_user_get"
	NameUserGet       = "user_get"
	NameUserSet       = "user_set"

	NameSubscriptionSelect   = "subscription_pool_select"
	NameResourceGroupCreate  = "resource_group_create"
	NameResourceGroupDelete  = "resource_group_delete"
	NameResourceGroupTag     = "resource_group_tag"
	NameResourcesAccess      = "project_resources_access"
	NameKeyVaultSecretDelete = "keyvault_secret_delete"

	NameProviderCommandSend = "provider_command_send"
)

// Activities bundles the dependencies the activity functions close over.
type Activities struct {
	Projects  store.ProjectStore
	Types     store.ProjectTypeStore
	Scopes    store.DeploymentScopeStore
	Users     store.UserStore
	TeamCloud store.TeamCloudStore
	Azure     azure.ResourceService
	Sender    *provider.Sender
	Log       *slog.Logger
}

// Register binds every activity on the engine and installs its retry policy.
func (a *Activities) Register(e *workflow.Engine) {
	e.RegisterActivity(NameProjectGet, a.projectGet)
	e.RegisterActivity(NameProjectSet, a.projectSet)
	e.RegisterActivity(NameProjectRemove, a.projectRemove)
	e.RegisterActivity(NameTeamCloudGet, a.teamCloudGet)
	e.RegisterActivity(NameSystemUserGet, a.systemUserGet)
	e.RegisterActivity(NameUserGet, a.userGet)
	e.RegisterActivity(NameUserSet, a.userSet)

	e.RegisterActivity(NameSubscriptionSelect, a.subscriptionSelect)
	e.RegisterActivity(NameResourceGroupCreate, a.resourceGroupCreate)
	e.RegisterActivity(NameResourceGroupDelete, a.resourceGroupDelete)
	e.RegisterActivity(NameResourceGroupTag, a.resourceGroupTag)
	e.RegisterActivity(NameResourcesAccess, a.resourcesAccess)
	e.RegisterActivity(NameKeyVaultSecretDelete, a.keyVaultSecretDelete)

	e.RegisterActivity(NameProviderCommandSend, a.providerCommandSend)

	registerRetryPolicies()
}

// retryTerminalKinds never benefit from a retry: the input itself is wrong,
// or the pool has no room.
func retryTerminalKinds(err error) bool {
	var ce model.CommandError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case model.ErrorKindValidation, model.ErrorKindCapacity:
			return false
		}
	}
	return true
}

func registerRetryPolicies() {
	// Persistence writes hit the local database; short, few retries.
	dbWrite := retry.Options{
		MaxNumberOfAttempts: 3,
		FirstRetryInterval:  5 * time.Second,
		MaxRetryInterval:    time.Minute,
		RetryTimeout:        10 * time.Minute,
		BackoffCoefficient:  2,
		Handle:              retryTerminalKinds,
	}
	retry.Register(NameProjectSet, dbWrite)
	retry.Register(NameProjectRemove, dbWrite)
	retry.Register(NameUserSet, dbWrite)

	// Cloud control-plane calls are slower and flakier.
	cloud := retry.Options{
		MaxNumberOfAttempts: 5,
		FirstRetryInterval:  30 * time.Second,
		MaxRetryInterval:    10 * time.Minute,
		RetryTimeout:        2 * time.Hour,
		BackoffCoefficient:  2,
		Handle:              retryTerminalKinds,
	}
	retry.Register(NameResourceGroupCreate, cloud)
	retry.Register(NameResourceGroupDelete, cloud)
	retry.Register(NameResourceGroupTag, cloud)
	retry.Register(NameResourcesAccess, cloud)
	retry.Register(NameKeyVaultSecretDelete, cloud)

	// Pool selection retries transient lookups but a full pool is final.
	retry.Register(NameSubscriptionSelect, retry.Options{
		MaxNumberOfAttempts: 3,
		FirstRetryInterval:  10 * time.Second,
		MaxRetryInterval:    time.Minute,
		RetryTimeout:        10 * time.Minute,
		BackoffCoefficient:  2,
		Handle:              retryTerminalKinds,
	})

	// Providers are external services with their own deployment cycles.
	retry.Register(NameProviderCommandSend, retry.Options{
		MaxNumberOfAttempts: 4,
		FirstRetryInterval:  15 * time.Second,
		MaxRetryInterval:    5 * time.Minute,
		RetryTimeout:        time.Hour,
		BackoffCoefficient:  2,
		Handle:              retryTerminalKinds,
	})
}
