// Package retry implements the per-operation retry policy framework. Every
// activity and sub-orchestration call goes through these options; plain calls
// are reserved for idempotent read-only lookups.
package retry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// HandleFunc decides whether a given failure is retryable.
type HandleFunc func(error) bool

// Options is the effective retry configuration for one operation name.
type Options struct {
	MaxNumberOfAttempts int
	FirstRetryInterval  time.Duration
	MaxRetryInterval    time.Duration
	RetryTimeout        time.Duration
	BackoffCoefficient  float64
	Handle              HandleFunc
}

// Defaults mirror the framework-wide fallbacks: a single attempt with an
// always-retry handler, one minute first interval, one hour cap, one day
// total timeout, linear backoff.
func defaultOptions() Options {
	return Options{
		MaxNumberOfAttempts: 1,
		FirstRetryInterval:  time.Minute,
		MaxRetryInterval:    time.Hour,
		RetryTimeout:        24 * time.Hour,
		BackoffCoefficient:  1,
	}
}

// TaskError is the engine wrapper around a failure crossing the activity
// boundary. Retry handlers unwrap it to inspect the true cause.
type TaskError struct {
	Operation string
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Operation, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Cause strips any TaskError layers off the given error.
func Cause(err error) error {
	for {
		var te *TaskError
		if !errors.As(err, &te) {
			return err
		}
		err = te.Err
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Options{}

	resolved sync.Map // operation name -> Options
)

// Register declares the default retry options for an operation name. It is
// meant to be called from package init alongside the operation's
// registration with the engine.
func Register(operation string, opts Options) {
	if opts.MaxNumberOfAttempts < 1 {
		panic(fmt.Sprintf("retry: operation %q: attempts must be >= 1", operation))
	}
	if opts.BackoffCoefficient < 1 {
		opts.BackoffCoefficient = 1
	}
	defaults := defaultOptions()
	if opts.FirstRetryInterval <= 0 {
		opts.FirstRetryInterval = defaults.FirstRetryInterval
	}
	if opts.MaxRetryInterval <= 0 {
		opts.MaxRetryInterval = defaults.MaxRetryInterval
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = defaults.RetryTimeout
	}

	registryMu.Lock()
	registry[operation] = opts
	registryMu.Unlock()
	resolved.Delete(operation)
}

// GetOptions resolves the effective retry options for an operation name:
// registered defaults, overlaid with any configured override for that name.
// Results are cached per operation name.
func GetOptions(operation string) Options {
	if cached, ok := resolved.Load(operation); ok {
		return cached.(Options)
	}

	registryMu.RLock()
	opts, ok := registry[operation]
	registryMu.RUnlock()
	if !ok {
		opts = defaultOptions()
	}

	opts = applyOverrides(operation, opts)

	resolved.Store(operation, opts)
	return opts
}

// applyOverrides merges the "retries.<operation>" config section, if any,
// on top of the registered defaults.
func applyOverrides(operation string, opts Options) Options {
	sub := viper.Sub("retries." + operation)
	if sub == nil {
		return opts
	}

	if sub.IsSet("max_attempts") {
		if v := sub.GetInt("max_attempts"); v >= 1 {
			opts.MaxNumberOfAttempts = v
		}
	}
	if sub.IsSet("first_retry_interval") {
		opts.FirstRetryInterval = sub.GetDuration("first_retry_interval")
	}
	if sub.IsSet("max_retry_interval") {
		opts.MaxRetryInterval = sub.GetDuration("max_retry_interval")
	}
	if sub.IsSet("retry_timeout") {
		opts.RetryTimeout = sub.GetDuration("retry_timeout")
	}
	if sub.IsSet("backoff_coefficient") {
		if v := sub.GetFloat64("backoff_coefficient"); v >= 1 {
			opts.BackoffCoefficient = v
		}
	}

	return opts
}

// InvalidateCache drops all resolved options so configuration changes are
// picked up on the next lookup. Intended for tests and config reloads.
func InvalidateCache() {
	resolved.Range(func(key, _ interface{}) bool {
		resolved.Delete(key)
		return true
	})
}

// WrapHandle builds the effective retry predicate for an operation: the
// failure is unwrapped to its cause and logged, then the explicit handler
// decides, falling back to the registered handler, falling back to true.
func (o Options) WrapHandle(log *slog.Logger, operation string, handle HandleFunc) HandleFunc {
	return func(err error) bool {
		cause := Cause(err)

		if log != nil {
			log.Warn("operation failed, evaluating retry",
				"operation", operation,
				"error", cause.Error())
		}

		if handle != nil {
			return handle(cause)
		}
		if o.Handle != nil {
			return o.Handle(cause)
		}
		return true
	}
}
