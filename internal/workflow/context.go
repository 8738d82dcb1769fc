package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"projectplane/internal/model"
	"projectplane/internal/retry"
	"projectplane/internal/store"
)

// Context is the handle an orchestration body uses to interact with the
// engine: activity calls, sub-orchestrations, timers, external events and
// result commitment all go through it.
type Context struct {
	ctx        context.Context
	engine     *Engine
	instanceID string
	log        *slog.Logger

	output json.RawMessage
	errors []model.CommandError
}

// Context returns the underlying context for the current execution.
func (c *Context) Context() context.Context {
	return c.ctx
}

// InstanceID returns the id of the running orchestration instance.
func (c *Context) InstanceID() string {
	return c.instanceID
}

// Logger returns a logger scoped to the running instance.
func (c *Context) Logger() *slog.Logger {
	return c.log
}

// CallActivity invokes a registered activity and decodes its result into
// output (which may be nil). Every call runs under the retry policy
// registered for the activity name; unregistered activities get the
// single-attempt default. Activity failures come back wrapped in
// retry.TaskError so callers can inspect the cause.
func (c *Context) CallActivity(name string, input interface{}, output interface{}) error {
	fn, ok := c.engine.activity(name)
	if !ok {
		return fmt.Errorf("unknown activity %q", name)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input for activity %q: %w", name, err)
	}

	opts := retry.GetOptions(name)
	handle := opts.WrapHandle(c.log, name, nil)

	var result interface{}
	err = retry.Do(c.ctx, c.engine.clock, opts, handle, func(ctx context.Context) error {
		r, err := fn(ctx, raw)
		if err != nil {
			return &retry.TaskError{Operation: name, Err: err}
		}
		result = r
		return nil
	})
	if err != nil {
		return err
	}

	if output == nil || result == nil {
		return nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result of activity %q: %w", name, err)
	}
	if err := json.Unmarshal(encoded, output); err != nil {
		return fmt.Errorf("decode result of activity %q: %w", name, err)
	}
	return nil
}

// StartOrchestration durably schedules another orchestration instance. The
// new instance runs independently; the caller does not wait for it.
func (c *Context) StartOrchestration(orchestration string, instance *store.Instance, payload json.RawMessage) error {
	return c.engine.Start(c.ctx, orchestration, instance, payload)
}

// WaitForInstance blocks until the given instance reaches a final status,
// polling at the engine's signal interval, and returns that status. An
// instance that disappears reports RuntimeStatusUnknown.
func (c *Context) WaitForInstance(instanceID string) (model.RuntimeStatus, error) {
	for {
		status, err := c.engine.GetStatus(c.ctx, instanceID)
		if err != nil {
			return model.RuntimeStatusUnknown, err
		}
		if !status.IsActive() {
			return status, nil
		}
		if err := c.engine.clock.Sleep(c.ctx, c.engine.config.SignalPollInterval); err != nil {
			return model.RuntimeStatusUnknown, err
		}
	}
}

// CreateTimer suspends the orchestration for the given duration.
func (c *Context) CreateTimer(d time.Duration) error {
	return c.engine.clock.Sleep(c.ctx, d)
}

// WaitForEvent blocks until an external event with the given name has been
// raised for this instance. The signal is durable: an event raised before
// the wait, or while the host was down, is still observed.
func (c *Context) WaitForEvent(name string) error {
	key := waiterKey(c.instanceID, name)

	ch := make(chan struct{}, 1)
	c.engine.waiterMu.Lock()
	c.engine.waiters[key] = ch
	c.engine.waiterMu.Unlock()
	defer func() {
		c.engine.waiterMu.Lock()
		delete(c.engine.waiters, key)
		c.engine.waiterMu.Unlock()
	}()

	for {
		consumed, err := c.engine.signals.ConsumeSignal(c.ctx, c.instanceID, name)
		if err != nil {
			return err
		}
		if consumed {
			return nil
		}

		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-ch:
			// Raised in-process, re-check the durable record.
		case <-time.After(c.engine.config.SignalPollInterval):
			// Raised out-of-process, poll.
		}
	}
}

// SetCustomStatus publishes a human-readable progress string on the
// instance record.
func (c *Context) SetCustomStatus(status string) {
	if err := c.engine.instances.SetInstanceCustomStatus(c.ctx, c.instanceID, status); err != nil {
		c.log.Warn("failed to set custom status", "status", status, "error", err)
	}
}

// ContinueAsNew ends the current execution and schedules the instance to
// run again from the top after the given delay. The returned error must be
// propagated out of the orchestration body.
func (c *Context) ContinueAsNew(delay time.Duration) error {
	return &continueAsNewError{delay: delay}
}

// SetOutput commits the orchestration's result payload. It is persisted
// together with the final runtime status when the body returns.
func (c *Context) SetOutput(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.output = raw
	return nil
}

// AddError records a command error on the instance. Any recorded error
// makes the final status Failed even if the body returns nil.
func (c *Context) AddError(kind model.ErrorKind, err error) {
	c.errors = append(c.errors, model.NewCommandError(kind, err))
}

// Errors returns the errors recorded so far.
func (c *Context) Errors() []model.CommandError {
	return c.errors
}

type continueAsNewError struct {
	delay time.Duration
}

func (e *continueAsNewError) Error() string {
	return fmt.Sprintf("continue as new after %s", e.delay)
}
