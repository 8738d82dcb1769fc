package orchestrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"projectplane/internal/azure"
	"projectplane/internal/model"
	"projectplane/internal/orchestrator/activities"
	"projectplane/internal/provider"
	"projectplane/internal/store"
	"projectplane/internal/workflow"
)

// memEnv is an in-memory backing store for orchestration tests: instances,
// queue, signals, entities and the domain documents all live in maps.
type memEnv struct {
	mu        sync.Mutex
	entityMu  sync.Mutex // emulates the FOR UPDATE row lock
	instances map[string]*store.Instance
	queue     map[string]*memQueueItem
	signals   map[string]bool
	entities  map[uuid.UUID]uuid.UUID
	projects  map[uuid.UUID]*model.Project
	types     map[string]*model.ProjectType
	scopes    map[string]*model.DeploymentScope
	users     map[uuid.UUID]*model.User
	tenants   map[string]*model.TeamCloudInstance
}

type memQueueItem struct {
	payload      json.RawMessage
	attempt      int
	visibleAfter time.Time
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemEnv() *memEnv {
	return &memEnv{
		instances: map[string]*store.Instance{},
		queue:     map[string]*memQueueItem{},
		signals:   map[string]bool{},
		entities:  map[uuid.UUID]uuid.UUID{},
		projects:  map[uuid.UUID]*model.Project{},
		types:     map[string]*model.ProjectType{},
		scopes:    map[string]*model.DeploymentScope{},
		users:     map[uuid.UUID]*model.User{},
		tenants:   map[string]*model.TeamCloudInstance{},
	}
}

type memTx struct{}

func (memTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (memTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (memTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (memTx) Commit() error                                                    { return nil }
func (memTx) Rollback() error                                                  { return nil }

func (m *memEnv) BeginTx(context.Context) (store.Tx, error) { return memTx{}, nil }

// InstanceStore

func (m *memEnv) CreateInstance(_ context.Context, _ store.DBTransaction, instance *store.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *instance
	m.instances[instance.InstanceID] = &cp
	return nil
}

func (m *memEnv) GetInstance(_ context.Context, instanceID string) (*store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, ok := m.instances[instanceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *instance
	return &cp, nil
}

func (m *memEnv) SetInstanceStatus(_ context.Context, instanceID string, status model.RuntimeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.RuntimeStatus = status
	}
	return nil
}

func (m *memEnv) SetInstanceCustomStatus(_ context.Context, instanceID, customStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.CustomStatus = customStatus
	}
	return nil
}

func (m *memEnv) SetInstanceOutput(_ context.Context, instanceID string, status model.RuntimeStatus, output json.RawMessage, errs []model.CommandError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.RuntimeStatus = status
		instance.Output = output
		instance.Errors = errs
	}
	return nil
}

// Queue

func (m *memEnv) Enqueue(_ context.Context, _ store.DBTransaction, instanceID string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[instanceID] = &memQueueItem{payload: payload, visibleAfter: visibleAfter}
	return int64(len(m.queue)), nil
}

func (m *memEnv) DequeueBatch(_ context.Context, limit int) ([]store.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 1
	}
	now := time.Now()
	var items []store.QueueItem
	for id, item := range m.queue {
		if len(items) >= limit {
			break
		}
		if item.visibleAfter.After(now) {
			continue
		}
		item.visibleAfter = now.Add(5 * time.Minute)
		item.attempt++
		items = append(items, store.QueueItem{InstanceID: id, Payload: item.payload, Attempt: item.attempt})
		if instance, ok := m.instances[id]; ok && instance.RuntimeStatus == model.RuntimeStatusPending {
			instance.RuntimeStatus = model.RuntimeStatusRunning
		}
	}
	return items, nil
}

func (m *memEnv) Complete(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, instanceID)
	return nil
}

func (m *memEnv) Reschedule(_ context.Context, instanceID string, visibleAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[instanceID]; ok {
		item.visibleAfter = visibleAfter
		item.attempt = 0
	}
	return nil
}

func (m *memEnv) SetVisibleAfter(_ context.Context, instanceID string, visibleAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[instanceID]; ok {
		item.visibleAfter = visibleAfter
	}
	return nil
}

func (m *memEnv) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queue)), nil
}

// SignalStore

func (m *memEnv) RaiseSignal(_ context.Context, instanceID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[instanceID+"/"+name] = true
	return nil
}

func (m *memEnv) ConsumeSignal(_ context.Context, instanceID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := instanceID + "/" + name
	if m.signals[key] {
		delete(m.signals, key)
		return true, nil
	}
	return false, nil
}

// EntityStore

// GetActiveCommandForUpdate takes the entity lock; SetActiveCommand
// releases it, mirroring how the real store holds the row lock for the
// rest of the registration transaction.
func (m *memEnv) GetActiveCommandForUpdate(_ context.Context, _ store.DBTransaction, projectID uuid.UUID) (*uuid.UUID, error) {
	m.entityMu.Lock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.entities[projectID]; ok {
		cp := id
		return &cp, nil
	}
	return nil, nil
}

func (m *memEnv) SetActiveCommand(_ context.Context, _ store.DBTransaction, projectID, commandID uuid.UUID) error {
	m.mu.Lock()
	m.entities[projectID] = commandID
	m.mu.Unlock()
	m.entityMu.Unlock()
	return nil
}

// ProjectStore

func (m *memEnv) GetProject(_ context.Context, id uuid.UUID) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memEnv) AddProject(_ context.Context, _ store.DBTransaction, p *model.Project) error {
	return m.SetProject(context.Background(), nil, p)
}

func (m *memEnv) SetProject(_ context.Context, _ store.DBTransaction, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memEnv) RemoveProject(_ context.Context, _ store.DBTransaction, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *memEnv) ListProjects(_ context.Context, tenant string) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var projects []model.Project
	for _, p := range m.projects {
		if p.Tenant == tenant {
			projects = append(projects, *p)
		}
	}
	return projects, nil
}

func (m *memEnv) GetInstanceCount(_ context.Context, projectTypeID string, subscriptionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.projects {
		if p.Type.ID == projectTypeID && p.ResourceGroup != nil && p.ResourceGroup.SubscriptionID == subscriptionID {
			count++
		}
	}
	return count, nil
}

// ProjectTypeStore

func (m *memEnv) GetProjectType(_ context.Context, id string) (*model.ProjectType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.types[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memEnv) SetProjectType(_ context.Context, _ store.DBTransaction, t *model.ProjectType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memEnv) GetDefaultProjectType(_ context.Context, tenant string) (*model.ProjectType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.Tenant == tenant && t.Default {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

// DeploymentScopeStore

func (m *memEnv) SetDeploymentScope(_ context.Context, _ store.DBTransaction, s *model.DeploymentScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.scopes[s.Tenant] = &cp
	return nil
}

func (m *memEnv) GetDefaultDeploymentScope(_ context.Context, tenant string) (*model.DeploymentScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scopes[tenant]; ok && s.Default {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

// UserStore

func (m *memEnv) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memEnv) AddUser(_ context.Context, _ store.DBTransaction, u *model.User) error {
	return m.SetUser(context.Background(), nil, u)
}

func (m *memEnv) SetUser(_ context.Context, _ store.DBTransaction, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memEnv) RemoveUser(_ context.Context, _ store.DBTransaction, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memEnv) ListAdmins(_ context.Context, tenant string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var admins []model.User
	for _, u := range m.users {
		if u.Tenant == tenant && u.Role == model.UserRoleAdmin {
			admins = append(admins, *u)
		}
	}
	return admins, nil
}

// TeamCloudStore

func (m *memEnv) GetTeamCloudInstance(_ context.Context, tenant string) (*model.TeamCloudInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[tenant]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memEnv) SetTeamCloudInstance(_ context.Context, _ store.DBTransaction, instance *model.TeamCloudInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *instance
	m.tenants[instance.Tenant] = &cp
	return nil
}

func (m *memEnv) activeCommand(projectID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entities[projectID]
	return id, ok
}

// testHost bundles a running engine with its backing env.
type testHost struct {
	env       *memEnv
	engine    *workflow.Engine
	resources *azure.MemoryResourceService
	cancel    context.CancelFunc
}

func newTestHost(t *testing.T, sender *provider.Sender) *testHost {
	t.Helper()

	env := newMemEnv()
	log := testLogger()
	resources := azure.NewMemoryResourceService()

	engine := workflow.New(env, env, env, env, workflow.Config{
		Concurrency:        8,
		PollInterval:       5 * time.Millisecond,
		MaxBackoff:         20 * time.Millisecond,
		HeartbeatInterval:  time.Hour,
		SignalPollInterval: 10 * time.Millisecond,
	}, log)

	acts := &activities.Activities{
		Projects:  env,
		Types:     env,
		Scopes:    env,
		Users:     env,
		TeamCloud: env,
		Azure:     resources,
		Sender:    sender,
		Log:       log,
	}
	acts.Register(engine)

	svc := &Service{
		Engine:              engine,
		DB:                  env,
		Entities:            env,
		Log:                 log,
		MonitorPollInterval: 15 * time.Millisecond,
	}
	svc.Register(engine)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	host := &testHost{env: env, engine: engine, resources: resources, cancel: cancel}
	t.Cleanup(cancel)
	return host
}

// invoke marshals and starts a command orchestration.
func (h *testHost) invoke(t *testing.T, cmd *model.Command) {
	t.Helper()
	payload, err := json.Marshal(model.CommandMessage{Command: *cmd})
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	instance := &store.Instance{InstanceID: cmd.InstanceID(), Command: cmd}
	if err := h.engine.Start(context.Background(), string(cmd.Type), instance, payload); err != nil {
		t.Fatalf("start command: %v", err)
	}
}

func (h *testHost) waitFinal(t *testing.T, instanceID string, timeout time.Duration) *store.Instance {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		instance, err := h.engine.GetInstance(context.Background(), instanceID)
		if err == nil && instance.RuntimeStatus.IsFinal() {
			return instance
		}
		time.Sleep(5 * time.Millisecond)
	}
	instance, _ := h.engine.GetInstance(context.Background(), instanceID)
	t.Fatalf("instance %s never finished, last seen %+v", instanceID, instance)
	return nil
}

// seedTenant installs a tenant document and grants the subscription pool.
func (h *testHost) seedTenant(tenant string, providers []model.Provider, subscriptions ...uuid.UUID) {
	h.env.SetTeamCloudInstance(context.Background(), nil, &model.TeamCloudInstance{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Providers: providers,
		Tags:      map[string]string{"teamcloud": "true"},
	})
	for _, s := range subscriptions {
		h.resources.GrantSubscription(s)
	}
}
