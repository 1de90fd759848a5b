// Package taskrunner executes a batch of AgentTasks concurrently, subject
// to a dependency DAG, per-task priority/timeout/retry, and an optional
// stop-on-first-error policy, producing per-task and aggregated results.
package taskrunner

import (
	"context"
	"time"
)

// Status is a task's position in its execution lifecycle.
type Status int8

const (
	StatusPending Status = iota
	StatusWaitingForDependencies
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWaitingForDependencies:
		return "waiting_for_dependencies"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// AgentTask is a single unit of work in a batch. DependsOn ids must refer
// to other tasks in the same batch and the induced graph must be acyclic;
// Runner.Run validates both before executing anything.
type AgentTask struct {
	Options     map[string]any
	Timeout     *time.Duration
	ID          string
	Type        string
	Prompt      string
	Description string
	DependsOn   []string
	Priority    uint8
}

// effectivePriority returns the task's priority, which defaults to 0 when
// unset (AgentTask.Priority has no separate "unset" representation in Go,
// so the zero value already is the default per the glossary's "Effective
// priority" definition).
func (t AgentTask) effectivePriority() uint8 { return t.Priority }

// TaskExecutionInfo is the per-task runtime record the runner maintains
// across the batch's lifetime.
type TaskExecutionInfo struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   error
	Result      any
	Status      Status
	RetryCount  int
}

// AgentResult is a task's terminal outcome.
type AgentResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Result      any
	Error       error
	TaskID      string
	Duration    time.Duration
	Retries     int
	Success     bool
}

// MergedResult aggregates a batch's outcome.
type MergedResult struct {
	Metadata   map[string]int
	Summary    string
	Payloads   []any
	Results    []AgentResult
	Successful int
	Failed     int
	Skipped    int
	Total      int
}

// Config tunes a Runner's concurrency, timeout, and retry behavior. In New,
// a non-positive MaxConcurrency, Timeout or RetryDelay and a negative
// MaxRetries are replaced by DefaultConfig's values; MaxRetries 0,
// RetryOnFailure and StopOnFirstError are used as given.
type Config struct {
	Timeout           time.Duration
	RetryDelay        time.Duration
	MaxConcurrency    int
	MaxRetries        int
	RetryOnFailure    bool
	StopOnFirstError  bool
}

// DefaultConfig returns the documented defaults:
// max_concurrency=4, timeout=5m, retry_on_failure=true,
// stop_on_first_error=false, max_retries=3, retry_delay=1s.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:   4,
		Timeout:          5 * time.Minute,
		RetryOnFailure:   true,
		StopOnFirstError: false,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	return c
}

// effectiveTimeout returns the task's own timeout if set, else the
// runner's configured timeout.
func (t AgentTask) effectiveTimeout(cfg Config) time.Duration {
	if t.Timeout != nil && *t.Timeout > 0 {
		return *t.Timeout
	}
	return cfg.Timeout
}

// maxRetries returns 0 if retry_on_failure is false, else cfg.MaxRetries.
func (cfg Config) maxRetries() int {
	if !cfg.RetryOnFailure {
		return 0
	}
	return cfg.MaxRetries
}

// Operation is the embedder-supplied function executed for each task
// attempt. The core does not prescribe its semantics beyond "returns a
// payload or an error" and must respect ctx cancellation/deadline.
type Operation func(ctx context.Context, task AgentTask) (any, error)
