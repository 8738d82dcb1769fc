package activities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

// ProjectReference identifies a project by id.
type ProjectReference struct {
	ProjectID uuid.UUID `json:"project_id"`
}

// TenantReference identifies a tenant.
type TenantReference struct {
	Tenant string `json:"tenant"`
}

func decode[T any](input json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(input, &v); err != nil {
		return v, model.CommandError{Kind: model.ErrorKindValidation, Message: fmt.Sprintf("invalid activity input: %v", err)}
	}
	return v, nil
}

func (a *Activities) projectGet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	ref, err := decode[ProjectReference](input)
	if err != nil {
		return nil, err
	}

	project, err := a.Projects.GetProject(ctx, ref.ProjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.CommandError{Kind: model.ErrorKindValidation, Message: fmt.Sprintf("project %s not found", ref.ProjectID)}
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (a *Activities) projectSet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	project, err := decode[model.Project](input)
	if err != nil {
		return nil, err
	}

	if err := a.Projects.SetProject(ctx, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (a *Activities) projectRemove(ctx context.Context, input json.RawMessage) (interface{}, error) {
	ref, err := decode[ProjectReference](input)
	if err != nil {
		return nil, err
	}
	return nil, a.Projects.RemoveProject(ctx, nil, ref.ProjectID)
}

func (a *Activities) teamCloudGet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	ref, err := decode[TenantReference](input)
	if err != nil {
		return nil, err
	}

	instance, err := a.TeamCloud.GetTeamCloudInstance(ctx, ref.Tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.CommandError{Kind: model.ErrorKindValidation, Message: fmt.Sprintf("tenant %q is not configured", ref.Tenant)}
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// systemUserGet returns the automation identity as a user record. Rollback
// commands run under this user so audit trails distinguish them from the
// original caller.
func (a *Activities) systemUserGet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	ref, err := decode[TenantReference](input)
	if err != nil {
		return nil, err
	}

	principalID, err := a.Azure.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}

	return &model.User{
		ID:     principalID,
		Tenant: ref.Tenant,
		Role:   model.UserRoleAdmin,
	}, nil
}

// UserReference identifies a user by id.
type UserReference struct {
	UserID uuid.UUID `json:"user_id"`
}

func (a *Activities) userGet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	ref, err := decode[UserReference](input)
	if err != nil {
		return nil, err
	}

	user, err := a.Users.GetUser(ctx, ref.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.CommandError{Kind: model.ErrorKindValidation, Message: fmt.Sprintf("user %s not found", ref.UserID)}
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (a *Activities) userSet(ctx context.Context, input json.RawMessage) (interface{}, error) {
	user, err := decode[model.User](input)
	if err != nil {
		return nil, err
	}

	if err := a.Users.SetUser(ctx, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
