package orchestrations

import (
	"encoding/json"
	"time"

	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/workflow"
)

// projectUpdate applies a revised project document: tags and properties are
// re-merged over tenant defaults, the resource group is re-tagged, and the
// participating providers are told about the change.
func (s *Service) projectUpdate(ctx *workflow.Context, input json.RawMessage) error {
	cmd, span, err := commandFrom(ctx, input)
	if err != nil {
		return err
	}
	defer span.End()

	var updated model.Project
	if err := cmd.UnmarshalPayload(&updated); err != nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "command payload is not a project: " + err.Error()}
	}

	if err := s.waitForPrevious(ctx, cmd); err != nil {
		return err
	}

	ctx.SetCustomStatus("Updating project")

	var current model.Project
	if err := ctx.CallActivity(activities.NameProjectGet, activities.ProjectReference{ProjectID: deref(cmd.ProjectID)}, &current); err != nil {
		return err
	}

	var teamCloud model.TeamCloudInstance
	if err := ctx.CallActivity(activities.NameTeamCloudGet, activities.TenantReference{Tenant: cmd.User.Tenant}, &teamCloud); err != nil {
		return err
	}

	// Provisioned state is not updatable; only the mutable document fields
	// move.
	current.Name = updated.Name
	current.Tags = model.MergeTags(model.MergeTags(teamCloud.Tags, current.Type.Tags), updated.Tags)
	current.Properties = model.MergeProperties(model.MergeProperties(teamCloud.Properties, current.Type.Properties), updated.Properties)
	current.UpdatedAt = time.Now().UTC()

	if current.ResourceGroup != nil {
		if err := ctx.CallActivity(activities.NameResourceGroupTag, activities.ResourceGroupTagInput{
			ResourceGroup: *current.ResourceGroup,
			Tags:          current.Tags,
		}, nil); err != nil {
			return err
		}
	}

	providers := teamCloud.ProvidersByID(current.Type.Providers)
	if err := s.sendProviderCommands(ctx, cmd, &current, providers); err != nil {
		return err
	}

	if err := ctx.CallActivity(activities.NameProjectSet, current, &current); err != nil {
		return err
	}

	ctx.SetCustomStatus("Project updated")
	return ctx.SetOutput(current)
}
