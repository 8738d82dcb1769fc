package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// RuntimeStatus is the lifecycle state of an orchestration instance and of
// the command result correlated with it.
type RuntimeStatus string

const (
	RuntimeStatusUnknown        RuntimeStatus = "unknown"
	RuntimeStatusPending        RuntimeStatus = "pending"
	RuntimeStatusRunning        RuntimeStatus = "running"
	RuntimeStatusContinuedAsNew RuntimeStatus = "continued_as_new"
	RuntimeStatusCompleted      RuntimeStatus = "completed"
	RuntimeStatusFailed         RuntimeStatus = "failed"
	RuntimeStatusTerminated     RuntimeStatus = "terminated"
	RuntimeStatusCanceled       RuntimeStatus = "canceled"
)

// IsActive reports whether the instance may still make progress.
func (s RuntimeStatus) IsActive() bool {
	switch s {
	case RuntimeStatusPending, RuntimeStatusRunning, RuntimeStatusContinuedAsNew:
		return true
	}
	return false
}

// IsFinal reports whether the instance has reached a terminal state.
// Unknown is neither active nor final.
func (s RuntimeStatus) IsFinal() bool {
	switch s {
	case RuntimeStatusCompleted, RuntimeStatusFailed, RuntimeStatusTerminated, RuntimeStatusCanceled:
		return true
	}
	return false
}

// ErrorKind classifies a command error per the handling policy: validation
// errors are never retried, transient errors go through the retry framework,
// capacity and provider errors are fatal to the current orchestration.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindCapacity   ErrorKind = "capacity"
	ErrorKindProvider   ErrorKind = "provider"
	ErrorKindInternal   ErrorKind = "internal"
)

// CommandError is the serializable error record carried on a command result.
// Details holds nested sub-errors, e.g. per-provider failures.
type CommandError struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details []CommandError `json:"details,omitempty"`
}

func (e CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewCommandError wraps an ordinary error, preserving the kind when the
// error already is a CommandError.
func NewCommandError(kind ErrorKind, err error) CommandError {
	if ce, ok := err.(CommandError); ok {
		return ce
	}
	return CommandError{Kind: kind, Message: err.Error()}
}

// CommandResult is the durable, queryable outcome record for a command.
// It is mutable while the runtime status is active and frozen once final.
type CommandResult struct {
	CommandID     uuid.UUID         `json:"command_id"`
	CommandType   CommandType       `json:"command_type"`
	InstanceID    string            `json:"instance_id"`
	RuntimeStatus RuntimeStatus     `json:"runtime_status"`
	CustomStatus  string            `json:"custom_status,omitempty"`
	Result        json.RawMessage   `json:"result,omitempty"`
	Errors        []CommandError    `json:"errors,omitempty"`
	Links         map[string]string `json:"links,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AddError appends an error to the result, classifying it if needed.
func (r *CommandResult) AddError(kind ErrorKind, err error) {
	r.Errors = append(r.Errors, NewCommandError(kind, err))
}

// SetResult marshals the given entity as the result payload.
func (r *CommandResult) SetResult(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Result = raw
	return nil
}

// Err collapses the collected errors into a single error, or nil if the
// command recorded none.
func (r *CommandResult) Err() error {
	var merr *multierror.Error
	for _, ce := range r.Errors {
		merr = multierror.Append(merr, ce)
	}
	return merr.ErrorOrNil()
}

// SetLink records a named link (status, location, project) on the result.
func (r *CommandResult) SetLink(name, url string) {
	if r.Links == nil {
		r.Links = map[string]string{}
	}
	r.Links[name] = url
}
