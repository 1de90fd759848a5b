package taskrunner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Runner executes one batch of AgentTasks at a time via Run. A Runner
// value carries no state between calls to Run; Config is fixed at
// construction.
type Runner struct {
	cfg Config
}

// New constructs a Runner with cfg, applying the defaults described on
// Config to unset numeric fields.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// Run executes tasks to completion (or cancellation) using op as the
// per-task operation, and returns the aggregated MergedResult. Run itself
// returns a non-nil error only for batch-level validation failures
// (missing dependency, cycle) — individual task failures are folded into
// the MergedResult and never propagated as a Run error.
func (r *Runner) Run(ctx context.Context, tasks []AgentTask, op Operation) (MergedResult, error) {
	if err := validateDependencies(tasks); err != nil {
		return MergedResult{}, err
	}

	b := newBatch(tasks, r.cfg, op)
	return b.run(ctx)
}

// validateDependencies checks that every DependsOn id refers to a task in
// the same batch and that the induced graph is acyclic. Grounded on the
// teacher's story-queue dependency validation: a DFS with a recursion
// stack that reports the exact cycle path when one is found.
func validateDependencies(tasks []AgentTask) error {
	byID := make(map[string]AgentTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return newInvalidDependencyError(t.ID, dep)
			}
		}
	}

	visited := make(map[string]bool, len(tasks))
	recStack := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if visited[t.ID] {
			continue
		}
		if cycle := detectCycleDFS(t.ID, byID, visited, recStack, nil); cycle != nil {
			return newCycleError(cycle)
		}
	}
	return nil
}

func detectCycleDFS(id string, byID map[string]AgentTask, visited, recStack map[string]bool, path []string) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, dep := range byID[id].DependsOn {
		if recStack[dep] {
			for i, p := range path {
				if p == dep {
					return append(append([]string{}, path[i:]...), dep)
				}
			}
			return append(path, dep)
		}
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, byID, visited, recStack, path); cycle != nil {
				return cycle
			}
		}
	}

	recStack[id] = false
	return nil
}

// batch holds the mutable state of one in-flight Run call. Mutex
// acquisition order, when more than one of these is held at once, is
// always pending -> running -> completed -> failed -> tasks, matching the
// spec's concurrency model.
type batch struct {
	op         Operation
	byID       map[string]AgentTask
	records    map[string]*TaskExecutionInfo
	recordsMu  sync.Mutex
	pending    []AgentTask
	pendingMu  sync.Mutex
	running    map[string]bool
	runningMu  sync.Mutex
	completed  map[string]bool
	completedMu sync.Mutex
	failed     map[string]bool
	failedMu   sync.Mutex
	results    []AgentResult
	resultsMu  sync.Mutex
	cancelled  bool
	cancelMu   sync.Mutex
	cfg        Config
}

func newBatch(tasks []AgentTask, cfg Config, op Operation) *batch {
	byID := make(map[string]AgentTask, len(tasks))
	records := make(map[string]*TaskExecutionInfo, len(tasks))
	pending := make([]AgentTask, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = t
		records[t.ID] = &TaskExecutionInfo{Status: StatusPending}
		pending[i] = t
	}
	sortByPriorityDesc(pending)

	return &batch{
		op:        op,
		byID:      byID,
		records:   records,
		pending:   pending,
		running:   make(map[string]bool),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
		cfg:       cfg,
	}
}

func sortByPriorityDesc(tasks []AgentTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].effectivePriority() > tasks[j].effectivePriority()
	})
}

func (b *batch) isCancelled() bool {
	b.cancelMu.Lock()
	defer b.cancelMu.Unlock()
	return b.cancelled
}

func (b *batch) setCancelled() {
	b.cancelMu.Lock()
	b.cancelled = true
	b.cancelMu.Unlock()
}

func (b *batch) run(ctx context.Context) (MergedResult, error) {
	for {
		if b.isCancelled() || ctx.Err() != nil {
			break
		}

		b.pendingMu.Lock()
		if len(b.pending) == 0 {
			b.pendingMu.Unlock()
			break
		}

		ready := make([]AgentTask, 0, len(b.pending))
		remaining := make([]AgentTask, 0, len(b.pending))
		b.completedMu.Lock()
		b.failedMu.Lock()
		for _, t := range b.pending {
			depsOK, depFailed := b.dependencyState(t)
			switch {
			case depsOK:
				ready = append(ready, t)
			case depFailed && b.cfg.StopOnFirstError:
				b.markSkipped(t.ID)
			default:
				remaining = append(remaining, t)
			}
		}
		b.failedMu.Unlock()
		b.completedMu.Unlock()
		b.pending = remaining
		b.pendingMu.Unlock()

		if len(ready) == 0 {
			b.runningMu.Lock()
			anyRunning := len(b.running) > 0
			b.runningMu.Unlock()
			if !anyRunning {
				// Defensive: validation should prevent this state.
				break
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		spawnCount := b.cfg.MaxConcurrency
		if spawnCount > len(ready) {
			spawnCount = len(ready)
		}
		spawnBatch := ready[:spawnCount]
		leftover := ready[spawnCount:]

		if len(leftover) > 0 {
			b.pendingMu.Lock()
			b.pending = append(append([]AgentTask{}, leftover...), b.pending...)
			sortByPriorityDesc(b.pending)
			b.pendingMu.Unlock()
		}

		b.runSpawnBatch(ctx, spawnBatch)

		if b.cfg.StopOnFirstError {
			b.failedMu.Lock()
			anyFailed := len(b.failed) > 0
			b.failedMu.Unlock()
			if anyFailed {
				b.setCancelled()
				b.pendingMu.Lock()
				for _, t := range b.pending {
					b.markSkipped(t.ID)
				}
				b.pending = nil
				b.pendingMu.Unlock()
				break
			}
		}
	}

	return b.mergedResult(), nil
}

// dependencyState reports whether t is ready to run (all deps Completed)
// and, separately, whether any dependency is in the Failed set.
func (b *batch) dependencyState(t AgentTask) (ready bool, depFailed bool) {
	if len(t.DependsOn) == 0 {
		return true, false
	}
	allCompleted := true
	for _, dep := range t.DependsOn {
		if b.failed[dep] {
			depFailed = true
		}
		if !b.completed[dep] {
			allCompleted = false
		}
	}
	return allCompleted, depFailed
}

func (b *batch) markSkipped(taskID string) {
	b.recordsMu.Lock()
	rec := b.records[taskID]
	rec.Status = StatusSkipped
	b.recordsMu.Unlock()
}

func (b *batch) runSpawnBatch(ctx context.Context, spawn []AgentTask) {
	var wg sync.WaitGroup
	for _, t := range spawn {
		wg.Add(1)
		go func(task AgentTask) {
			defer wg.Done()
			b.runOne(ctx, task)
		}(t)
	}
	wg.Wait()
}

func (b *batch) runOne(ctx context.Context, task AgentTask) {
	now := time.Now().UTC()
	b.recordsMu.Lock()
	rec := b.records[task.ID]
	rec.Status = StatusRunning
	rec.StartedAt = &now
	b.recordsMu.Unlock()

	b.runningMu.Lock()
	b.running[task.ID] = true
	b.runningMu.Unlock()
	defer func() {
		b.runningMu.Lock()
		delete(b.running, task.ID)
		b.runningMu.Unlock()
	}()

	result := b.attempt(ctx, task)

	completedAt := time.Now().UTC()
	b.recordsMu.Lock()
	rec.CompletedAt = &completedAt
	if result.Success {
		rec.Status = StatusCompleted
	} else {
		rec.Status = StatusFailed
	}
	rec.RetryCount = result.Retries
	rec.LastError = result.Error
	rec.Result = result.Result
	b.recordsMu.Unlock()

	if result.Success {
		b.completedMu.Lock()
		b.completed[task.ID] = true
		b.completedMu.Unlock()
	} else {
		b.failedMu.Lock()
		b.failed[task.ID] = true
		b.failedMu.Unlock()
	}

	b.resultsMu.Lock()
	b.results = append(b.results, result)
	b.resultsMu.Unlock()
}

// attempt runs task's attempt loop: check cancellation, invoke op under
// timeout, retry with the configured delay on failure until retries are
// exhausted.
func (b *batch) attempt(ctx context.Context, task AgentTask) AgentResult {
	start := time.Now().UTC()
	maxRetries := b.cfg.maxRetries()
	timeout := task.effectiveTimeout(b.cfg)

	var lastErr error
	retries := 0

	for attempt := 0; ; attempt++ {
		if b.isCancelled() || ctx.Err() != nil {
			return AgentResult{
				TaskID: task.ID, Success: false,
				Error: newError(KindCancelled, "batch cancelled"),
				StartedAt: start, CompletedAt: time.Now().UTC(),
				Duration: time.Since(start), Retries: retries,
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		payload, err := b.invoke(attemptCtx, task)
		cancel()

		if err == nil {
			return AgentResult{
				TaskID: task.ID, Success: true, Result: payload,
				StartedAt: start, CompletedAt: time.Now().UTC(),
				Duration: time.Since(start), Retries: retries,
			}
		}

		lastErr = err
		if attempt >= maxRetries {
			break
		}
		retries++
		time.Sleep(b.cfg.RetryDelay)
	}

	finalErr := newTaskFailedError(task.ID, lastErr)
	if maxRetries > 0 {
		finalErr = &Error{Kind: KindRetriesExhausted, TaskID: task.ID, Err: lastErr}
	}
	return AgentResult{
		TaskID: task.ID, Success: false, Error: finalErr,
		StartedAt: start, CompletedAt: time.Now().UTC(),
		Duration: time.Since(start), Retries: retries,
	}
}

func (b *batch) invoke(ctx context.Context, task AgentTask) (result any, err error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err = b.op(ctx, task)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		return nil, newError(KindTaskTimeout, fmt.Sprintf("task %s timed out", task.ID))
	}
}

func (b *batch) mergedResult() MergedResult {
	b.recordsMu.Lock()
	skipped := 0
	for _, rec := range b.records {
		if rec.Status == StatusSkipped {
			skipped++
		}
	}
	b.recordsMu.Unlock()

	b.resultsMu.Lock()
	results := append([]AgentResult{}, b.results...)
	b.resultsMu.Unlock()

	successful, failed := 0, 0
	payloads := make([]any, 0, len(results))
	for _, r := range results {
		if r.Success {
			successful++
			payloads = append(payloads, r.Result)
		} else {
			failed++
		}
	}

	total := len(b.byID)
	summary := fmt.Sprintf("All %d succeeded", total)
	if failed > 0 {
		summary = fmt.Sprintf("%d succeeded, %d failed", successful, failed)
	}

	return MergedResult{
		Payloads:   payloads,
		Summary:    summary,
		Results:    results,
		Total:      total,
		Successful: successful,
		Failed:     failed,
		Skipped:    skipped,
		Metadata: map[string]int{
			"total":      total,
			"successful": successful,
			"failed":     failed,
			"skipped":    skipped,
		},
	}
}
