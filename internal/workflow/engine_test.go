package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// memTx satisfies store.Tx for fakes that ignore transactions.
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

type memItem struct {
	payload      json.RawMessage
	attempt      int
	visibleAfter time.Time
}

// memStore is an in-memory stand-in for the Postgres instance, queue and
// signal stores.
type memStore struct {
	mu        sync.Mutex
	instances map[string]*store.Instance
	queue     map[string]*memItem
	signals   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		instances: map[string]*store.Instance{},
		queue:     map[string]*memItem{},
		signals:   map[string]bool{},
	}
}

func (m *memStore) BeginTx(context.Context) (store.Tx, error) { return memTx{}, nil }

func (m *memStore) CreateInstance(_ context.Context, _ store.DBTransaction, instance *store.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *instance
	m.instances[instance.InstanceID] = &cp
	return nil
}

func (m *memStore) GetInstance(_ context.Context, instanceID string) (*store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, ok := m.instances[instanceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *instance
	return &cp, nil
}

func (m *memStore) SetInstanceStatus(_ context.Context, instanceID string, status model.RuntimeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.RuntimeStatus = status
	}
	return nil
}

func (m *memStore) SetInstanceCustomStatus(_ context.Context, instanceID, customStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.CustomStatus = customStatus
	}
	return nil
}

func (m *memStore) SetInstanceOutput(_ context.Context, instanceID string, status model.RuntimeStatus, output json.RawMessage, errs []model.CommandError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, ok := m.instances[instanceID]; ok {
		instance.RuntimeStatus = status
		instance.Output = output
		instance.Errors = errs
	}
	return nil
}

func (m *memStore) Enqueue(_ context.Context, _ store.DBTransaction, instanceID string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[instanceID] = &memItem{payload: payload, visibleAfter: visibleAfter}
	return int64(len(m.queue)), nil
}

func (m *memStore) DequeueBatch(_ context.Context, limit int) ([]store.QueueItem, error) {
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

func (m *memStore) Complete(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, instanceID)
	return nil
}

func (m *memStore) Reschedule(_ context.Context, instanceID string, visibleAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[instanceID]; ok {
		item.visibleAfter = visibleAfter
		item.attempt = 0
	}
	return nil
}

func (m *memStore) SetVisibleAfter(_ context.Context, instanceID string, visibleAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.queue[instanceID]; ok {
		item.visibleAfter = visibleAfter
	}
	return nil
}

func (m *memStore) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queue)), nil
}

func (m *memStore) RaiseSignal(_ context.Context, instanceID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[instanceID+"/"+name] = true
	return nil
}

func (m *memStore) ConsumeSignal(_ context.Context, instanceID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := instanceID + "/" + name
	if m.signals[key] {
		delete(m.signals, key)
		return true, nil
	}
	return false, nil
}

func newTestEngine(t *testing.T, mem *memStore) *Engine {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mem, mem, mem, mem, Config{
		Concurrency:        4,
		PollInterval:       5 * time.Millisecond,
		MaxBackoff:         20 * time.Millisecond,
		HeartbeatInterval:  time.Hour,
		SignalPollInterval: 10 * time.Millisecond,
	}, log)
}

func runEngine(t *testing.T, e *Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	return cancel
}

func waitForStatus(t *testing.T, e *Engine, instanceID string, want model.RuntimeStatus) *store.Instance {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		instance, err := e.GetInstance(context.Background(), instanceID)
		if err == nil && instance.RuntimeStatus == want {
			return instance
		}
		time.Sleep(5 * time.Millisecond)
	}
	instance, _ := e.GetInstance(context.Background(), instanceID)
	t.Fatalf("instance %s never reached %s, last seen %+v", instanceID, want, instance)
	return nil
}

func TestEngine_RunsOrchestrationToCompletion(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	e.RegisterActivity("double", func(_ context.Context, input json.RawMessage) (interface{}, error) {
		var n int
		json.Unmarshal(input, &n)
		return n * 2, nil
	})
	e.RegisterOrchestration("doubler", func(ctx *Context, input json.RawMessage) error {
		var result int
		if err := ctx.CallActivity("double", 21, &result); err != nil {
			return err
		}
		return ctx.SetOutput(result)
	})

	cancel := runEngine(t, e)
	defer cancel()

	instanceID := uuid.New().String()
	if err := e.Start(context.Background(), "doubler", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	instance := waitForStatus(t, e, instanceID, model.RuntimeStatusCompleted)
	if string(instance.Output) != "42" {
		t.Errorf("got output %s, want 42", instance.Output)
	}
	if count, _ := mem.Count(context.Background()); count != 0 {
		t.Errorf("queue not drained, %d items left", count)
	}
}

func TestEngine_FailedOrchestrationRecordsError(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	e.RegisterActivity("explode", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, errors.New("boom")
	})
	e.RegisterOrchestration("fragile", func(ctx *Context, _ json.RawMessage) error {
		return ctx.CallActivity("explode", nil, nil)
	})

	cancel := runEngine(t, e)
	defer cancel()

	instanceID := uuid.New().String()
	if err := e.Start(context.Background(), "fragile", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	instance := waitForStatus(t, e, instanceID, model.RuntimeStatusFailed)
	if len(instance.Errors) == 0 || !strings.Contains(instance.Errors[0].Message, "boom") {
		t.Errorf("expected activity failure recorded, got %+v", instance.Errors)
	}
}

func TestEngine_WaitForEventObservesEarlierSignal(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	e.RegisterOrchestration("waiter", func(ctx *Context, _ json.RawMessage) error {
		return ctx.WaitForEvent("go-ahead")
	})

	instanceID := uuid.New().String()

	// Signal raised before the instance ever runs; it must still be seen.
	if err := e.RaiseEvent(context.Background(), instanceID, "go-ahead"); err != nil {
		t.Fatalf("RaiseEvent failed: %v", err)
	}

	cancel := runEngine(t, e)
	defer cancel()

	if err := e.Start(context.Background(), "waiter", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitForStatus(t, e, instanceID, model.RuntimeStatusCompleted)
}

func TestEngine_RaiseEventUnblocksRunningWaiter(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	started := make(chan struct{})
	var once sync.Once
	e.RegisterOrchestration("waiter", func(ctx *Context, _ json.RawMessage) error {
		once.Do(func() { close(started) })
		return ctx.WaitForEvent("release")
	})

	cancel := runEngine(t, e)
	defer cancel()

	instanceID := uuid.New().String()
	if err := e.Start(context.Background(), "waiter", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	<-started
	if err := e.RaiseEvent(context.Background(), instanceID, "release"); err != nil {
		t.Fatalf("RaiseEvent failed: %v", err)
	}

	waitForStatus(t, e, instanceID, model.RuntimeStatusCompleted)
}

func TestEngine_ContinueAsNewRunsAgain(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	var runs int32
	var mu sync.Mutex
	e.RegisterOrchestration("poller", func(ctx *Context, _ json.RawMessage) error {
		mu.Lock()
		runs++
		current := runs
		mu.Unlock()
		if current < 3 {
			return ctx.ContinueAsNew(5 * time.Millisecond)
		}
		return ctx.SetOutput("done")
	})

	cancel := runEngine(t, e)
	defer cancel()

	instanceID := uuid.New().String()
	if err := e.Start(context.Background(), "poller", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitForStatus(t, e, instanceID, model.RuntimeStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if runs != 3 {
		t.Errorf("got %d runs, want 3", runs)
	}
}

func TestEngine_ShutdownLeavesInFlightForRedelivery(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	started := make(chan struct{})
	var once sync.Once
	e.RegisterOrchestration("interruptible", func(ctx *Context, _ json.RawMessage) error {
		once.Do(func() { close(started) })
		return ctx.WaitForEvent("never-raised")
	})

	cancel := runEngine(t, e)

	instanceID := uuid.New().String()
	if err := e.Start(context.Background(), "interruptible", &store.Instance{InstanceID: instanceID}, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	<-started
	cancel()
	<-e.Done()

	instance, err := e.GetInstance(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if instance.RuntimeStatus.IsFinal() {
		t.Errorf("shutdown finalized the instance as %s, want it left active for redelivery", instance.RuntimeStatus)
	}
	if count, _ := mem.Count(context.Background()); count != 1 {
		t.Errorf("queue holds %d items, want 1 so the instance is redelivered", count)
	}
}

func TestEngine_PoisonsInstanceAfterDeliveryAttemptsExhausted(t *testing.T) {
	mem := newMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(mem, mem, mem, mem, Config{
		Concurrency:         1,
		PollInterval:        5 * time.Millisecond,
		MaxBackoff:          20 * time.Millisecond,
		HeartbeatInterval:   time.Hour,
		MaxDeliveryAttempts: 2,
	}, log)

	e.RegisterOrchestration("noop", func(ctx *Context, _ json.RawMessage) error { return nil })

	instanceID := uuid.New().String()
	mem.CreateInstance(context.Background(), nil, &store.Instance{
		InstanceID:    instanceID,
		Orchestration: "noop",
		RuntimeStatus: model.RuntimeStatusRunning,
	})

	// Simulate repeated crashed deliveries.
	e.processItem(context.Background(), store.QueueItem{InstanceID: instanceID, Attempt: 3})

	instance, err := e.GetInstance(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if instance.RuntimeStatus != model.RuntimeStatusFailed {
		t.Errorf("got status %s, want failed", instance.RuntimeStatus)
	}
	if len(instance.Errors) == 0 || !strings.Contains(instance.Errors[0].Message, "exhausted") {
		t.Errorf("expected poison error, got %+v", instance.Errors)
	}
}

func TestEngine_StartUnknownOrchestrationFails(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	err := e.Start(context.Background(), "missing", &store.Instance{InstanceID: uuid.New().String()}, nil)
	if err == nil {
		t.Fatal("expected error for unknown orchestration")
	}
}

func TestEngine_GetStatusUnknownInstance(t *testing.T) {
	mem := newMemStore()
	e := newTestEngine(t, mem)

	status, err := e.GetStatus(context.Background(), "never-started")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status != model.RuntimeStatusUnknown {
		t.Errorf("got %s, want unknown", status)
	}
}
