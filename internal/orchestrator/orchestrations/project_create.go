package orchestrations

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// projectCreate provisions a new project end to end: tenant defaults,
// subscription placement, cloud resources, provider fan-out. A provisioning
// failure rolls the project back by dispatching a delete command under the
// system identity; the original failure is what the command reports.
func (s *Service) projectCreate(ctx *workflow.Context, input json.RawMessage) error {
	cmd, span, err := commandFrom(ctx, input)
	if err != nil {
		return err
	}
	defer span.End()

	var project model.Project
	if err := cmd.UnmarshalPayload(&project); err != nil {
		return model.CommandError{Kind: model.ErrorKindValidation, Message: "command payload is not a project: " + err.Error()}
	}

	if err := s.waitForPrevious(ctx, cmd); err != nil {
		return err
	}

	err = s.provisionProject(ctx, cmd, &project)
	if err != nil {
		ctx.AddError(classify(err), err)
		s.rollbackProject(ctx, cmd, &project)
		ctx.SetCustomStatus("Project creation failed")
		ctx.SetOutput(project)
		return nil
	}

	ctx.SetCustomStatus("Project created")
	return ctx.SetOutput(project)
}

func (s *Service) provisionProject(ctx *workflow.Context, cmd *model.Command, project *model.Project) error {
	ctx.SetCustomStatus("Initializing project")

	var teamCloud model.TeamCloudInstance
	if err := ctx.CallActivity(activities.NameTeamCloudGet, activities.TenantReference{Tenant: cmd.User.Tenant}, &teamCloud); err != nil {
		return err
	}

	// Tenant defaults sit at the bottom, project type in the middle, the
	// request itself wins.
	project.Tenant = teamCloud.Tenant
	project.Tags = model.MergeTags(model.MergeTags(teamCloud.Tags, project.Type.Tags), project.Tags)
	project.Properties = model.MergeProperties(model.MergeProperties(teamCloud.Properties, project.Type.Properties), project.Properties)
	project.CreatedAt = time.Now().UTC()
	project.UpdatedAt = project.CreatedAt

	providers := teamCloud.ProvidersByID(project.Type.Providers)

	users, principals, err := s.assembleProjectUsers(ctx, cmd, project, providers)
	if err != nil {
		return err
	}
	project.Users = users

	ctx.SetCustomStatus("Allocating subscription")

	var subscriptionID uuid.UUID
	if err := ctx.CallActivity(activities.NameSubscriptionSelect, activities.SubscriptionSelectInput{ProjectType: project.Type}, &subscriptionID); err != nil {
		return err
	}

	ctx.SetCustomStatus("Provisioning resources")

	var group model.ResourceGroup
	if err := ctx.CallActivity(activities.NameResourceGroupCreate, activities.ResourceGroupCreateInput{
		ProjectID:      project.ID,
		SubscriptionID: subscriptionID,
		Region:         project.Type.Region,
	}, &group); err != nil {
		return err
	}
	project.ResourceGroup = &group

	if err := ctx.CallActivity(activities.NameResourceGroupTag, activities.ResourceGroupTagInput{
		ResourceGroup: group,
		Tags:          project.Tags,
	}, nil); err != nil {
		return err
	}

	var vault model.KeyVault
	if err := ctx.CallActivity(activities.NameResourcesAccess, activities.ResourcesAccessInput{
		ResourceGroup: group,
		ProjectID:     project.ID,
		PrincipalIDs:  principals,
	}, &vault); err != nil {
		return err
	}
	project.KeyVault = &vault

	// First persist: the project now occupies its subscription, which is
	// what pool selection counts.
	if err := ctx.CallActivity(activities.NameProjectSet, project, project); err != nil {
		return err
	}

	if err := s.sendProviderCommands(ctx, cmd, project, providers); err != nil {
		return err
	}

	project.UpdatedAt = time.Now().UTC()
	return ctx.CallActivity(activities.NameProjectSet, project, project)
}

// assembleProjectUsers gives the creator ownership and joins each
// registered provider's principal as a provider member, persisting every
// touched user document. Returns the project-scoped user list and the
// provider principal ids needing resource access.
func (s *Service) assembleProjectUsers(ctx *workflow.Context, cmd *model.Command, project *model.Project, providers []model.Provider) ([]model.User, []uuid.UUID, error) {
	creator := *cmd.User
	creator.EnsureProjectMembership(project.ID, model.ProjectRoleOwner)
	if err := ctx.CallActivity(activities.NameUserSet, creator, &creator); err != nil {
		return nil, nil, err
	}

	users := []model.User{creator}
	var principals []uuid.UUID

	for _, p := range providers {
		if p.PrincipalID == nil {
			continue
		}
		principals = append(principals, *p.PrincipalID)

		providerUser := model.User{
			ID:     *p.PrincipalID,
			Tenant: project.Tenant,
		}
		providerUser.EnsureProjectMembership(project.ID, model.ProjectRoleProvider)
		if err := ctx.CallActivity(activities.NameUserSet, providerUser, &providerUser); err != nil {
			return nil, nil, err
		}
		users = append(users, providerUser)
	}

	return model.ScopeUsersToProject(users, project.ID), principals, nil
}

// sendProviderCommands fans the command out to every participating
// provider in order, folding reported properties back into the project.
// Provider failures are collected; any failure fails the command.
func (s *Service) sendProviderCommands(ctx *workflow.Context, cmd *model.Command, project *model.Project, providers []model.Provider) error {
	if len(providers) == 0 {
		return nil
	}

	ctx.SetCustomStatus("Sending provider commands")

	payload, err := marshalJSON(project)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	for _, p := range providers {
		providerCmd := model.NewProviderCommand(cmd, p)
		providerCmd.Payload = payload

		var result model.ProviderCommandResult
		if err := ctx.CallActivity(activities.NameProviderCommandSend, activities.ProviderSendInput{
			Provider: p,
			Command:  providerCmd,
		}, &result); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}

		project.Properties = model.MergeProperties(project.Properties, result.Output.Properties)
	}

	if failure := merr.ErrorOrNil(); failure != nil {
		return model.NewCommandError(model.ErrorKindProvider, failure)
	}
	return nil
}

// rollbackProject compensates a failed creation: a project delete command
// is dispatched as its own orchestration under the system identity, so the
// cleanup is tracked and retried independently of this failed instance.
func (s *Service) rollbackProject(ctx *workflow.Context, cmd *model.Command, project *model.Project) {
	ctx.SetCustomStatus("Rolling back project creation")

	var systemUser model.User
	if err := ctx.CallActivity(activities.NameSystemUserGet, activities.TenantReference{Tenant: cmd.User.Tenant}, &systemUser); err != nil {
		ctx.AddError(model.ErrorKindInternal, err)
		return
	}

	deleteCmd, err := model.NewCommand(model.CommandProjectDelete, &systemUser, project)
	if err != nil {
		ctx.AddError(model.ErrorKindInternal, err)
		return
	}
	deleteCmd.WithProject(project.ID)

	payload, err := marshalJSON(model.CommandMessage{Command: *deleteCmd})
	if err != nil {
		ctx.AddError(model.ErrorKindInternal, err)
		return
	}

	instance := &store.Instance{InstanceID: deleteCmd.InstanceID(), Command: deleteCmd}
	if err := ctx.StartOrchestration(string(model.CommandProjectDelete), instance, payload); err != nil {
		ctx.AddError(model.ErrorKindInternal, err)
		return
	}

	ctx.Logger().Info("rollback delete dispatched",
		"project_id", project.ID,
		"delete_command_id", deleteCmd.CommandID)
}
