package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRuntimeStatusClassification(t *testing.T) {
	active := []RuntimeStatus{RuntimeStatusPending, RuntimeStatusRunning, RuntimeStatusContinuedAsNew}
	final := []RuntimeStatus{RuntimeStatusCompleted, RuntimeStatusFailed, RuntimeStatusTerminated, RuntimeStatusCanceled}

	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
		if s.IsFinal() {
			t.Errorf("%s should not be final", s)
		}
	}

	for _, s := range final {
		if s.IsActive() {
			t.Errorf("%s should not be active", s)
		}
		if !s.IsFinal() {
			t.Errorf("%s should be final", s)
		}
	}

	if RuntimeStatusUnknown.IsActive() || RuntimeStatusUnknown.IsFinal() {
		t.Error("unknown status must be neither active nor final")
	}
}

func TestNewCommandRequiresUser(t *testing.T) {
	if _, err := NewCommand(CommandProjectCreate, nil, Project{}); err == nil {
		t.Fatal("expected error for nil user")
	}

	user := &User{ID: uuid.New()}
	cmd, err := NewCommand(CommandProjectCreate, user, Project{Name: "proj1"})
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	if cmd.CommandID == uuid.Nil {
		t.Error("command id not assigned")
	}
	if cmd.ProjectID != nil {
		t.Error("project id should be unset until WithProject")
	}
}

func TestCreateResultSeedsPending(t *testing.T) {
	user := &User{ID: uuid.New()}
	cmd, _ := NewCommand(CommandProjectCreate, user, Project{Name: "proj1"})

	result := cmd.CreateResult()
	if result.CommandID != cmd.CommandID {
		t.Error("result not correlated with command")
	}
	if result.InstanceID != cmd.CommandID.String() {
		t.Error("instance id should derive from command id")
	}
	if result.RuntimeStatus != RuntimeStatusPending {
		t.Errorf("got status %s, want pending", result.RuntimeStatus)
	}
	if len(result.Errors) != 0 {
		t.Error("new result should carry no errors")
	}
}

func TestCommandResultErrAggregation(t *testing.T) {
	result := &CommandResult{}
	if result.Err() != nil {
		t.Error("no errors recorded, Err should be nil")
	}

	result.AddError(ErrorKindCapacity, errors.New("all subscriptions at capacity"))
	result.AddError(ErrorKindProvider, errors.New("provider p1 failed"))

	err := result.Err()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(result.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(result.Errors))
	}
	if result.Errors[0].Kind != ErrorKindCapacity {
		t.Errorf("got kind %s, want capacity", result.Errors[0].Kind)
	}
}

func TestNewCommandErrorPreservesKind(t *testing.T) {
	original := CommandError{Kind: ErrorKindCapacity, Message: "full"}
	wrapped := NewCommandError(ErrorKindInternal, original)
	if wrapped.Kind != ErrorKindCapacity {
		t.Errorf("got kind %s, want capacity preserved", wrapped.Kind)
	}
}
