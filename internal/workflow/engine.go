// Package workflow is the durable-execution substrate for orchestrations:
// a registry of orchestration and activity functions, a pull-loop that
// dispatches instances from the durable queue, timers, and external-event
// signals. Orchestrations run to completion in-process; durability comes
// from the queue's visibility timeout (crashed instances are redelivered)
// and from idempotent activities, not from history replay.
package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"projectplane/internal/logger"
	"projectplane/internal/model"
	"projectplane/internal/retry"
	"projectplane/internal/store"
)

// OrchestrationFunc is a workflow body. All side effects must go through
// activities; the function may be re-run from the start after a crash, so
// everything it does must be safe to repeat.
type OrchestrationFunc func(ctx *Context, input json.RawMessage) error

// ActivityFunc is an atomic unit of side-effecting work. The returned value
// is marshalled back to the caller.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (interface{}, error)

// TxBeginner lets the engine enlist instance creation and enqueueing in one
// transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context) (store.Tx, error)
}

// Config holds tuning for the engine's pull loop.
type Config struct {
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // backoff cap when the queue is empty
	HeartbeatInterval   time.Duration // interval between visibility extensions
	VisibilityExtension time.Duration // how far each heartbeat pushes visibility
	SignalPollInterval  time.Duration // how often a waiter re-checks the signal table
	MaxDeliveryAttempts int           // redeliveries before an instance is poisoned
}

// Engine hosts orchestration instances: it starts them durably, runs the
// dispatch pull-loop, and exposes status/event primitives.
type Engine struct {
	db        TxBeginner
	queue     store.Queue
	instances store.InstanceStore
	signals   store.SignalStore
	clock     retry.Clock
	config    Config
	log       *slog.Logger

	mu             sync.RWMutex
	orchestrations map[string]OrchestrationFunc
	activities     map[string]ActivityFunc

	waiterMu sync.Mutex
	waiters  map[string]chan struct{} // instanceID+"/"+event -> wakeup

	inFlight atomic.Int64
	done     chan struct{}
}

// New creates an engine over the given stores.
func New(db TxBeginner, queue store.Queue, instances store.InstanceStore, signals store.SignalStore, config Config, log *slog.Logger) *Engine {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 2 * time.Minute
	}
	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}
	if config.SignalPollInterval <= 0 {
		config.SignalPollInterval = 5 * time.Second
	}
	if config.MaxDeliveryAttempts <= 0 {
		config.MaxDeliveryAttempts = 5
	}

	return &Engine{
		db:             db,
		queue:          queue,
		instances:      instances,
		signals:        signals,
		clock:          retry.RealClock{},
		config:         config,
		log:            log,
		orchestrations: map[string]OrchestrationFunc{},
		activities:     map[string]ActivityFunc{},
		waiters:        map[string]chan struct{}{},
		done:           make(chan struct{}),
	}
}

// WithClock swaps the engine's clock. Intended for tests.
func (e *Engine) WithClock(clock retry.Clock) *Engine {
	e.clock = clock
	return e
}

// RegisterOrchestration binds an orchestration name to its function.
func (e *Engine) RegisterOrchestration(name string, fn OrchestrationFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orchestrations[name] = fn
}

// RegisterActivity binds an activity name to its function.
func (e *Engine) RegisterActivity(name string, fn ActivityFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activities[name] = fn
}

func (e *Engine) orchestration(name string) (OrchestrationFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.orchestrations[name]
	return fn, ok
}

func (e *Engine) activity(name string) (ActivityFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.activities[name]
	return fn, ok
}

// Start durably schedules a new orchestration instance: the instance record
// and the queue entry commit in one transaction.
func (e *Engine) Start(ctx context.Context, orchestration string, instance *store.Instance, payload json.RawMessage) error {
	if _, ok := e.orchestration(orchestration); !ok {
		return fmt.Errorf("unknown orchestration %q", orchestration)
	}

	instance.Orchestration = orchestration
	instance.RuntimeStatus = model.RuntimeStatusPending

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.instances.CreateInstance(ctx, tx, instance); err != nil {
		return err
	}
	if _, err := e.queue.Enqueue(ctx, tx, instance.InstanceID, payload, time.Time{}); err != nil {
		return err
	}

	return tx.Commit()
}

// GetStatus returns the runtime status of an instance. Unknown instances
// report RuntimeStatusUnknown with no error so callers can fail open.
func (e *Engine) GetStatus(ctx context.Context, instanceID string) (model.RuntimeStatus, error) {
	instance, err := e.instances.GetInstance(ctx, instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RuntimeStatusUnknown, nil
	}
	if err != nil {
		return model.RuntimeStatusUnknown, err
	}
	return instance.RuntimeStatus, nil
}

// GetInstance returns the full instance record, or sql.ErrNoRows.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*store.Instance, error) {
	return e.instances.GetInstance(ctx, instanceID)
}

// RaiseEvent durably records an external event for an instance and wakes an
// in-process waiter if one is blocked on it.
func (e *Engine) RaiseEvent(ctx context.Context, instanceID, name string) error {
	if err := e.signals.RaiseSignal(ctx, instanceID, name); err != nil {
		return err
	}

	e.waiterMu.Lock()
	if ch, ok := e.waiters[waiterKey(instanceID, name)]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.waiterMu.Unlock()
	return nil
}

func waiterKey(instanceID, name string) string {
	return instanceID + "/" + name
}

// Run starts the dispatch pull-loop. It blocks until the context is
// cancelled; in-flight orchestrations are allowed to finish.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("workflow engine starting", "concurrency", e.config.Concurrency)

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	pollNow := make(chan struct{}, 1)
	currentBackoff := e.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("context cancelled, waiting for running orchestrations to finish")
			wg.Wait()
			close(e.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := e.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := e.queue.DequeueBatch(ctx, availableSlots)
			if err != nil {
				e.log.Error("dequeue batch failed", "error", err)
				continue
			}

			if len(items) == 0 {
				currentBackoff = currentBackoff * 2
				if currentBackoff > e.config.MaxBackoff {
					currentBackoff = e.config.MaxBackoff
				}
				continue
			}

			currentBackoff = e.config.PollInterval

			for _, item := range items {
				sem <- struct{}{}
				wg.Add(1)
				go func(item store.QueueItem) {
					defer wg.Done()
					defer func() {
						e.inFlight.Add(-1)
						<-sem
						triggerPoll()
					}()
					e.inFlight.Add(1)
					e.processItem(ctx, item)
				}(item)
			}

			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the engine has fully stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// InFlight reports how many orchestration instances are currently running.
func (e *Engine) InFlight() int64 {
	return e.inFlight.Load()
}

// processItem runs a single dequeued orchestration instance.
func (e *Engine) processItem(ctx context.Context, item store.QueueItem) {
	log := e.log.With("instance_id", item.InstanceID)

	instance, err := e.instances.GetInstance(ctx, item.InstanceID)
	if err != nil {
		log.Error("instance lookup failed, dropping dispatch", "error", err)
		e.queue.Complete(context.Background(), item.InstanceID)
		return
	}

	if item.Attempt > e.config.MaxDeliveryAttempts {
		log.Error("delivery attempts exhausted, poisoning instance", "attempt", item.Attempt)
		e.instances.SetInstanceOutput(context.Background(), item.InstanceID, model.RuntimeStatusFailed, nil,
			[]model.CommandError{{Kind: model.ErrorKindInternal, Message: "orchestration delivery attempts exhausted"}})
		e.queue.Complete(context.Background(), item.InstanceID)
		return
	}

	fn, ok := e.orchestration(instance.Orchestration)
	if !ok {
		log.Error("unknown orchestration, poisoning instance", "orchestration", instance.Orchestration)
		e.instances.SetInstanceOutput(context.Background(), item.InstanceID, model.RuntimeStatusFailed, nil,
			[]model.CommandError{{Kind: model.ErrorKindInternal, Message: fmt.Sprintf("unknown orchestration %q", instance.Orchestration)}})
		e.queue.Complete(context.Background(), item.InstanceID)
		return
	}

	runCtx := ctx
	if instance.Command != nil {
		commandID := instance.Command.CommandID.String()
		log = log.With("command_id", commandID)
		runCtx = logger.WithCommandID(ctx, commandID)
	}

	tracer := otel.Tracer("workflow-engine")
	spanCtx, span := tracer.Start(runCtx, "run_orchestration",
		trace.WithAttributes(
			attribute.String("instance.id", item.InstanceID),
			attribute.String("orchestration", instance.Orchestration),
			attribute.Int("delivery.attempt", item.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	// Keep the claim alive while the orchestration runs.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go e.runHeartbeat(heartbeatCtx, item.InstanceID)

	wfctx := &Context{
		ctx:        spanCtx,
		engine:     e,
		instanceID: item.InstanceID,
		log:        log,
	}

	err = fn(wfctx, item.Payload)

	var continued *continueAsNewError
	switch {
	case errors.As(err, &continued):
		// The instance re-runs later under the same id; status and queue
		// entry survive.
		log.Debug("orchestration continued as new", "delay", continued.delay)
		e.instances.SetInstanceStatus(context.Background(), item.InstanceID, model.RuntimeStatusContinuedAsNew)
		e.queue.Reschedule(context.Background(), item.InstanceID, e.clock.Now().Add(continued.delay))

	case err != nil && ctx.Err() != nil:
		// Host shutdown interrupted the run. The queue row stays put, so
		// the visibility timeout hands the instance to the next worker
		// instead of finalizing it here.
		log.Info("orchestration interrupted by shutdown, leaving for redelivery", "error", err)

	case err != nil:
		span.RecordError(err)
		log.Error("orchestration failed", "error", err)
		wfctx.AddError(model.ErrorKindInternal, retry.Cause(err))
		e.instances.SetInstanceOutput(context.Background(), item.InstanceID, model.RuntimeStatusFailed, wfctx.output, wfctx.errors)
		e.queue.Complete(context.Background(), item.InstanceID)

	default:
		status := model.RuntimeStatusCompleted
		if len(wfctx.errors) > 0 {
			status = model.RuntimeStatusFailed
		}
		e.instances.SetInstanceOutput(context.Background(), item.InstanceID, status, wfctx.output, wfctx.errors)
		e.queue.Complete(context.Background(), item.InstanceID)
	}
}

// runHeartbeat extends the visibility timeout periodically while an
// orchestration executes, so another worker does not claim it.
func (e *Engine) runHeartbeat(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visibleAfter := time.Now().Add(e.config.VisibilityExtension)
			if err := e.queue.SetVisibleAfter(context.Background(), instanceID, visibleAfter); err != nil {
				e.log.Warn("heartbeat failed", "instance_id", instanceID, "error", err)
			}
		}
	}
}
