package orchestrations

import (
	"encoding/json"

	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/workflow"
)

// projectDelete tears a project down: provider notifications, the resource
// group with everything in it, user memberships, then the project document
// itself. Deleting a project that is already gone completes cleanly so a
// redelivered or repeated delete stays idempotent.
func (s *Service) projectDelete(ctx *workflow.Context, input json.RawMessage) error {
	cmd, span, err := commandFrom(ctx, input)
	if err != nil {
		return err
	}
	defer span.End()

	if err := s.waitForPrevious(ctx, cmd); err != nil {
		return err
	}

	ctx.SetCustomStatus("Deleting project")

	var project model.Project
	err = ctx.CallActivity(activities.NameProjectGet, activities.ProjectReference{ProjectID: deref(cmd.ProjectID)}, &project)
	if err != nil {
		if !isValidation(err) {
			return err
		}
		// Already gone. The payload may still describe resources a
		// half-finished create left behind; without any there is nothing
		// left to do.
		if payloadErr := cmd.UnmarshalPayload(&project); payloadErr != nil || project.ResourceGroup == nil {
			ctx.SetCustomStatus("Project already deleted")
			return nil
		}
	}

	var teamCloud model.TeamCloudInstance
	if err := ctx.CallActivity(activities.NameTeamCloudGet, activities.TenantReference{Tenant: cmd.User.Tenant}, &teamCloud); err != nil {
		return err
	}

	// Providers hear about the deletion even if later steps fail; their
	// failures are recorded but do not block resource cleanup.
	providers := teamCloud.ProvidersByID(project.Type.Providers)
	if err := s.sendProviderCommands(ctx, cmd, &project, providers); err != nil {
		ctx.AddError(model.ErrorKindProvider, err)
	}

	// The vault may still hold the project's automation credential; drop it
	// before the group (and the vault with it) goes away. Failures are
	// recorded but do not block the rest of the teardown.
	if project.KeyVault != nil {
		ctx.SetCustomStatus("Removing project secrets")
		if err := ctx.CallActivity(activities.NameKeyVaultSecretDelete, activities.KeyVaultSecretDeleteInput{
			KeyVault: *project.KeyVault,
			Name:     project.ID.String(),
		}, nil); err != nil {
			ctx.AddError(model.ErrorKindInternal, err)
		}
	}

	if project.ResourceGroup != nil {
		ctx.SetCustomStatus("Deleting project resources")
		if err := ctx.CallActivity(activities.NameResourceGroupDelete, activities.ResourceGroupInput{ResourceGroup: *project.ResourceGroup}, nil); err != nil {
			return err
		}
	}

	ctx.SetCustomStatus("Removing project memberships")
	for _, member := range project.Users {
		// The project document only carries scoped copies; fetch the
		// canonical record so other memberships survive.
		var user model.User
		if err := ctx.CallActivity(activities.NameUserGet, activities.UserReference{UserID: member.ID}, &user); err != nil {
			if isValidation(err) {
				continue
			}
			return err
		}
		user.RemoveProjectMembership(project.ID)
		if err := ctx.CallActivity(activities.NameUserSet, user, nil); err != nil {
			return err
		}
	}

	if err := ctx.CallActivity(activities.NameProjectRemove, activities.ProjectReference{ProjectID: project.ID}, nil); err != nil {
		return err
	}

	ctx.SetCustomStatus("Project deleted")
	return ctx.SetOutput(project)
}
