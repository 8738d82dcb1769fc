// Package store contains the persistence layer for projectplane.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction to
// the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// ProjectStore handles persistence of project documents. All writes are
// single atomic upserts; orchestration-level serialization is what keeps two
// workflows for the same project from interleaving them.
type ProjectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*model.Project, error)
	AddProject(ctx context.Context, tx DBTransaction, project *model.Project) error
	SetProject(ctx context.Context, tx DBTransaction, project *model.Project) error
	RemoveProject(ctx context.Context, tx DBTransaction, id uuid.UUID) error
	ListProjects(ctx context.Context, tenant string) ([]model.Project, error)

	// GetInstanceCount returns how many projects of the given type currently
	// occupy the given subscription.
	GetInstanceCount(ctx context.Context, projectTypeID string, subscriptionID uuid.UUID) (int, error)
}

// ProjectTypeStore handles persistence of project type documents.
type ProjectTypeStore interface {
	GetProjectType(ctx context.Context, id string) (*model.ProjectType, error)
	SetProjectType(ctx context.Context, tx DBTransaction, projectType *model.ProjectType) error
	GetDefaultProjectType(ctx context.Context, tenant string) (*model.ProjectType, error)
}

// UserStore handles persistence of user documents.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	AddUser(ctx context.Context, tx DBTransaction, user *model.User) error
	SetUser(ctx context.Context, tx DBTransaction, user *model.User) error
	RemoveUser(ctx context.Context, tx DBTransaction, id uuid.UUID) error
	ListAdmins(ctx context.Context, tenant string) ([]model.User, error)
}

// DeploymentScopeStore handles persistence of deployment scope documents.
// Project types without their own subscription pool draw from the tenant's
// default scope.
type DeploymentScopeStore interface {
	SetDeploymentScope(ctx context.Context, tx DBTransaction, scope *model.DeploymentScope) error
	GetDefaultDeploymentScope(ctx context.Context, tenant string) (*model.DeploymentScope, error)
}

// TeamCloudStore handles the singleton tenant configuration document.
type TeamCloudStore interface {
	GetTeamCloudInstance(ctx context.Context, tenant string) (*model.TeamCloudInstance, error)
	SetTeamCloudInstance(ctx context.Context, tx DBTransaction, instance *model.TeamCloudInstance) error
}

// Instance is the persisted state of one orchestration instance. For command
// orchestrations the instance id is the command id and Command carries the
// original envelope; monitors have a generated id and no command.
type Instance struct {
	InstanceID    string
	Orchestration string
	Command       *model.Command
	RuntimeStatus model.RuntimeStatus
	CustomStatus  string
	Output        json.RawMessage
	Errors        []model.CommandError
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InstanceStore handles orchestration instance records. GetInstance returns
// sql.ErrNoRows for unknown instances so callers can distinguish "lost"
// from "failed".
type InstanceStore interface {
	CreateInstance(ctx context.Context, tx DBTransaction, instance *Instance) error
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
	SetInstanceStatus(ctx context.Context, instanceID string, status model.RuntimeStatus) error
	SetInstanceCustomStatus(ctx context.Context, instanceID string, customStatus string) error

	// SetInstanceOutput commits the instance's final (or latest) output,
	// errors, and runtime status in one write.
	SetInstanceOutput(ctx context.Context, instanceID string, status model.RuntimeStatus, output json.RawMessage, errs []model.CommandError) error
}

// QueueItem represents a dequeued dispatch from the queue.
type QueueItem struct {
	InstanceID string
	Payload    json.RawMessage
	Attempt    int
}

// Queue defines the durable dispatch queue for orchestration instances.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics so
// concurrent workers never claim the same instance.
type Queue interface {
	// Enqueue schedules an instance for dispatch, optionally delayed.
	Enqueue(ctx context.Context, tx DBTransaction, instanceID string, payload json.RawMessage, visibleAfter time.Time) (int64, error)

	// DequeueBatch claims up to 'limit' due instances atomically.
	// Returns a nil slice if the queue is empty.
	DequeueBatch(ctx context.Context, limit int) ([]QueueItem, error)

	// Complete removes a finished instance from the queue.
	Complete(ctx context.Context, instanceID string) error

	// Reschedule re-arms an instance to run again after the given time,
	// resetting its delivery attempts. Used for continue-as-new.
	Reschedule(ctx context.Context, instanceID string, visibleAfter time.Time) error

	// SetVisibleAfter extends the visibility timeout (heartbeat).
	SetVisibleAfter(ctx context.Context, instanceID string, visibleAfter time.Time) error

	// Count tracks the number of items in the queue.
	Count(ctx context.Context) (int64, error)
}

// EntityStore is the durable keyed entity backing the per-project command
// serialization protocol. GetActiveCommandForUpdate must lock the project's
// row for the remainder of the transaction.
type EntityStore interface {
	GetActiveCommandForUpdate(ctx context.Context, tx DBTransaction, projectID uuid.UUID) (*uuid.UUID, error)
	SetActiveCommand(ctx context.Context, tx DBTransaction, projectID, commandID uuid.UUID) error
}

// SignalStore persists external-event signals so a waiter that restarts
// still observes a signal raised while it was down.
type SignalStore interface {
	RaiseSignal(ctx context.Context, instanceID, name string) error
	ConsumeSignal(ctx context.Context, instanceID, name string) (bool, error)
}
