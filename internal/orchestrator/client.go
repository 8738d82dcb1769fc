// Package orchestrator is the command side of the system: it accepts
// command envelopes, starts their orchestrations on the workflow engine,
// and answers status queries by correlation id.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"projectplane/internal/azure"
	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/orchestrator/orchestrations"
	"projectplane/internal/provider"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// Deps are the stores and services the orchestrator wires into its
// activities and orchestrations.
type Deps struct {
	DB        workflow.TxBeginner
	Projects  store.ProjectStore
	Types     store.ProjectTypeStore
	Scopes    store.DeploymentScopeStore
	Users     store.UserStore
	TeamCloud store.TeamCloudStore
	Entities  store.EntityStore
	Azure     azure.ResourceService
	Sender    *provider.Sender

	// MonitorPollInterval overrides how often the command monitor polls its
	// predecessor. Zero keeps the default.
	MonitorPollInterval time.Duration
}

// Orchestrator accepts commands and resolves their results.
type Orchestrator struct {
	engine  *workflow.Engine
	baseURL string
	log     *slog.Logger
}

// New registers all activities and orchestrations on the engine and returns
// the command client. baseURL is the externally visible API root used in
// result links.
func New(engine *workflow.Engine, deps Deps, baseURL string, log *slog.Logger) *Orchestrator {
	acts := &activities.Activities{
		Projects:  deps.Projects,
		Types:     deps.Types,
		Scopes:    deps.Scopes,
		Users:     deps.Users,
		TeamCloud: deps.TeamCloud,
		Azure:     deps.Azure,
		Sender:    deps.Sender,
		Log:       log,
	}
	acts.Register(engine)

	svc := &orchestrations.Service{
		Engine:              engine,
		DB:                  deps.DB,
		Entities:            deps.Entities,
		Log:                 log,
		MonitorPollInterval: deps.MonitorPollInterval,
	}
	svc.Register(engine)

	return &Orchestrator{engine: engine, baseURL: baseURL, log: log}
}

// InvokeAsync durably schedules the command's orchestration and returns the
// pending result. The current trace context rides along on the queue
// message so the orchestration's spans join the API request's trace.
func (o *Orchestrator) InvokeAsync(ctx context.Context, cmd *model.Command) (*model.CommandResult, error) {
	if cmd == nil || cmd.User == nil {
		return nil, model.CommandError{Kind: model.ErrorKindValidation, Message: "command requires a user"}
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	payload, err := json.Marshal(model.CommandMessage{Command: *cmd, Trace: carrier})
	if err != nil {
		return nil, err
	}

	instance := &store.Instance{InstanceID: cmd.InstanceID(), Command: cmd}
	if err := o.engine.Start(ctx, string(cmd.Type), instance, payload); err != nil {
		return nil, err
	}

	o.log.Info("command accepted",
		"command_id", cmd.CommandID,
		"command_type", cmd.Type,
		"user_id", cmd.User.ID)

	result := cmd.CreateResult()
	o.setLinks(result, cmd.ProjectID)
	return result, nil
}

// QueryAsync resolves the result for a command id. Unknown commands return
// (nil, nil).
func (o *Orchestrator) QueryAsync(ctx context.Context, commandID uuid.UUID) (*model.CommandResult, error) {
	instance, err := o.engine.GetInstance(ctx, commandID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &model.CommandResult{
		CommandID:     commandID,
		InstanceID:    instance.InstanceID,
		RuntimeStatus: instance.RuntimeStatus,
		CustomStatus:  instance.CustomStatus,
		Result:        instance.Output,
		Errors:        instance.Errors,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
	}

	var projectID *uuid.UUID
	if instance.Command != nil {
		result.CommandType = instance.Command.Type
		projectID = instance.Command.ProjectID
	}
	o.setLinks(result, projectID)

	return result, nil
}

func (o *Orchestrator) setLinks(result *model.CommandResult, projectID *uuid.UUID) {
	result.SetLink("status", fmt.Sprintf("%s/orchestrator/commands/%s", o.baseURL, result.CommandID))
	if projectID != nil {
		result.SetLink("project", fmt.Sprintf("%s/api/projects/%s", o.baseURL, projectID))
		result.SetLink("location", fmt.Sprintf("%s/api/projects/%s", o.baseURL, projectID))
	}
}
