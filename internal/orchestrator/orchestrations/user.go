package orchestrations

import (
	"encoding/json"

	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/workflow"
)

// projectUserSet adds or updates a user inside a project. The command is
// project scoped, so it takes part in the serialization protocol and keeps
// the project document's member list in sync with the user document.
func (s *Service) projectUserSet(ctx *workflow.Context, input json.RawMessage) error {
	cmd, span, err := commandFrom(ctx, input)
	if err != nil {
		return err
	}
	defer span.End()

	var user model.User
	if err := cmd.UnmarshalPayload(&user); err != nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "command payload is not a user: " + err.Error()}
	}
	if cmd.ProjectID == nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "project user command requires a project id"}
	}
	projectID := *cmd.ProjectID
	if user.RoleFor(projectID) == model.UserRoleNone {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "user carries no membership for the target project"}
	}

	if err := s.waitForPrevious(ctx, cmd); err != nil {
		return err
	}

	ctx.SetCustomStatus("Updating project membership")

	// Layer the requested membership onto the canonical record if one
	// exists; a brand-new user is persisted as sent.
	var current model.User
	err = ctx.CallActivity(activities.NameUserGet, activities.UserReference{UserID: user.ID}, &current)
	switch {
	case err == nil:
		current.EnsureProjectMembership(projectID, user.RoleFor(projectID))
		user = current
	case !isValidation(err):
		return err
	}

	if err := ctx.CallActivity(activities.NameUserSet, user, &user); err != nil {
		return err
	}

	var project model.Project
	if err := ctx.CallActivity(activities.NameProjectGet, activities.ProjectReference{ProjectID: projectID}, &project); err != nil {
		return err
	}

	scoped := user.ScopeToProject(projectID)
	replaced := false
	for i, member := range project.Users {
		if member.ID == user.ID {
			project.Users[i] = scoped
			replaced = true
			break
		}
	}
	if !replaced {
		project.Users = append(project.Users, scoped)
	}

	if err := ctx.CallActivity(activities.NameProjectSet, project, nil); err != nil {
		return err
	}

	ctx.SetCustomStatus("Project membership updated")
	return ctx.SetOutput(user)
}

// teamCloudUserSet adds or updates a tenant-level user. No project id, no
// serialization: tenant user commands run concurrently.
func (s *Service) teamCloudUserSet(ctx *workflow.Context, input json.RawMessage) error {
	cmd, span, err := commandFrom(ctx, input)
	if err != nil {
		return err
	}
	defer span.End()

	var user model.User
	if err := cmd.UnmarshalPayload(&user); err != nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "command payload is not a user: " + err.Error()}
	}

	ctx.SetCustomStatus("Updating user")

	// Keep existing memberships when the tenant-level role changes.
	var current model.User
	err = ctx.CallActivity(activities.NameUserGet, activities.UserReference{UserID: user.ID}, &current)
	switch {
	case err == nil:
		current.Role = user.Role
		current.Properties = model.MergeProperties(current.Properties, user.Properties)
		user = current
	case !isValidation(err):
		return err
	}

	if err := ctx.CallActivity(activities.NameUserSet, user, &user); err != nil {
		return err
	}

	ctx.SetCustomStatus("User updated")
	return ctx.SetOutput(user)
}
