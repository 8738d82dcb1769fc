package activities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"projectplane/internal/logger"
	"projectplane/internal/model"
)

// SubscriptionSelectInput asks for a subscription out of the project type's
// pool with remaining capacity.
type SubscriptionSelectInput struct {
	ProjectType model.ProjectType `json:"project_type"`
}

// subscriptionSelect picks the pool subscription with the most remaining
// capacity. Capacity is the configured per-subscription limit minus the
// projects of this type already placed there; subscriptions the
// orchestrator cannot access count as zero. Ties keep the earliest pool
// entry so placement is deterministic.
func (a *Activities) subscriptionSelect(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[SubscriptionSelectInput](input)
	if err != nil {
		return nil, err
	}

	// The stored type document wins over the copy riding in the command
	// payload, so pool edits made after the command was accepted still
	// apply.
	projectType := in.ProjectType
	current, err := a.Types.GetProjectType(ctx, projectType.ID)
	switch {
	case err == nil:
		projectType = *current
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	pool, err := a.subscriptionPool(ctx, projectType)
	if err != nil {
		return nil, err
	}

	var (
		best         uuid.UUID
		bestCapacity int
	)

	for _, subscriptionID := range pool {
		capacity, err := a.subscriptionCapacity(ctx, projectType, subscriptionID)
		if err != nil {
			return nil, err
		}
		if capacity > bestCapacity {
			best = subscriptionID
			bestCapacity = capacity
		}
	}

	if bestCapacity == 0 {
		return nil, model.CommandError{
			Kind:    model.ErrorKindCapacity,
			Message: fmt.Sprintf("subscription pool of project type %q has no remaining capacity", projectType.ID),
		}
	}

	return best, nil
}

// subscriptionPool resolves where projects of the type may land: the type's
// own pool, or the tenant's default deployment scope when the type carries
// none.
func (a *Activities) subscriptionPool(ctx context.Context, projectType model.ProjectType) ([]uuid.UUID, error) {
	if len(projectType.Subscriptions) > 0 {
		return projectType.Subscriptions, nil
	}

	scope, err := a.Scopes.GetDefaultDeploymentScope(ctx, projectType.Tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.CommandError{
			Kind:    model.ErrorKindValidation,
			Message: fmt.Sprintf("project type %q has no subscription pool and tenant %q has no default deployment scope", projectType.ID, projectType.Tenant),
		}
	}
	if err != nil {
		return nil, err
	}

	if len(scope.Subscriptions) == 0 {
		return nil, model.CommandError{
			Kind:    model.ErrorKindValidation,
			Message: fmt.Sprintf("deployment scope %q has no subscriptions", scope.Name),
		}
	}
	return scope.Subscriptions, nil
}

func (a *Activities) subscriptionCapacity(ctx context.Context, projectType model.ProjectType, subscriptionID uuid.UUID) (int, error) {
	access, err := a.Azure.HasSubscriptionAccess(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}
	if !access {
		logger.FromContext(ctx, a.Log).Warn("subscription excluded from pool, no access",
			"subscription_id", subscriptionID,
			"project_type", projectType.ID)
		return 0, nil
	}

	count, err := a.Projects.GetInstanceCount(ctx, projectType.ID, subscriptionID)
	if err != nil {
		return 0, err
	}

	capacity := projectType.SubscriptionCapacity - count
	if capacity < 0 {
		capacity = 0
	}
	return capacity, nil
}
