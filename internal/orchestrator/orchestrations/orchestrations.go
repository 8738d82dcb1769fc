// Package orchestrations contains the command workflows: project
// create/update/delete, user commands, and the monitor that backs the
// per-project command serialization protocol.
package orchestrations

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"projectplane/internal/model"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// NameCommandMonitor is the polling orchestration used while a command
// waits for its predecessor. Command orchestrations register under their
// command type.
const NameCommandMonitor = "command_monitor"

// Service bundles the dependencies the orchestrations close over. Activities
// are reached by name through the engine, not directly.
type Service struct {
	Engine   *workflow.Engine
	DB       workflow.TxBeginner
	Entities store.EntityStore
	Log      *slog.Logger

	// MonitorPollInterval overrides DefaultMonitorPollInterval when > 0.
	MonitorPollInterval time.Duration
}

// Register binds every orchestration on the engine.
func (s *Service) Register(e *workflow.Engine) {
	e.RegisterOrchestration(string(model.CommandProjectCreate), s.projectCreate)
	e.RegisterOrchestration(string(model.CommandProjectUpdate), s.projectUpdate)
	e.RegisterOrchestration(string(model.CommandProjectDelete), s.projectDelete)
	e.RegisterOrchestration(string(model.CommandProjectUserCreate), s.projectUserSet)
	e.RegisterOrchestration(string(model.CommandProjectUserUpdate), s.projectUserSet)
	e.RegisterOrchestration(string(model.CommandTeamCloudUserCreate), s.teamCloudUserSet)
	e.RegisterOrchestration(string(model.CommandTeamCloudUserUpdate), s.teamCloudUserSet)
	e.RegisterOrchestration(NameCommandMonitor, s.commandMonitor)
}

// commandFrom unpacks the queued command message and rejoins the trace the
// originating API request started. Callers must End the returned span.
func commandFrom(ctx *workflow.Context, input json.RawMessage) (*model.Command, trace.Span, error) {
	var msg model.CommandMessage
	if err := json.Unmarshal(input, &msg); err != nil {
		return nil, nil, model.CommandError{Kind: model.ErrorKindValidation, Message: "malformed command message: " + err.Error()}
	}
	if msg.Command.User == nil {
		return nil, nil, model.CommandError{Kind: model.ErrorKindValidation, Message: "command carries no user"}
	}

	parent := otel.GetTextMapPropagator().Extract(ctx.Context(), msg.Trace)
	_, span := otel.Tracer("orchestrations").Start(parent, "command_"+string(msg.Command.Type),
		trace.WithAttributes(
			attribute.String("command.id", msg.Command.CommandID.String()),
			attribute.String("command.type", string(msg.Command.Type)),
		))

	return &msg.Command, span, nil
}

func marshalJSON(v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// classify maps a failure to its error kind, defaulting to internal.
func classify(err error) model.ErrorKind {
	var ce model.CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return model.ErrorKindInternal
}

// isValidation reports whether the failure is a validation error, e.g. a
// lookup on a document that does not exist.
func isValidation(err error) bool {
	return classify(err) == model.ErrorKindValidation
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
