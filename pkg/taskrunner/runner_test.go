package taskrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeedOp(order *[]string, mu *sync.Mutex) Operation {
	return func(_ context.Context, task AgentTask) (any, error) {
		mu.Lock()
		*order = append(*order, task.ID)
		mu.Unlock()
		return task.ID, nil
	}
}

func TestDependencyAndPriorityOrdering(t *testing.T) {
	tasks := []AgentTask{
		{ID: "low", Priority: 1},
		{ID: "high", Priority: 10},
		{ID: "medium", Priority: 5},
	}

	var order []string
	var mu sync.Mutex
	r := New(Config{MaxConcurrency: 1})

	result, err := r.Run(context.Background(), tasks, succeedOp(&order, &mu))
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "medium", "low"}, order)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
}

func TestCycleRejection(t *testing.T) {
	tasks := []AgentTask{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}

	ran := int32(0)
	r := New(DefaultConfig())
	_, err := r.Run(context.Background(), tasks, func(context.Context, AgentTask) (any, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, Is(err, KindCircularDependency))
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestInvalidDependency(t *testing.T) {
	tasks := []AgentTask{{ID: "a", DependsOn: []string{"ghost"}}}
	r := New(DefaultConfig())
	_, err := r.Run(context.Background(), tasks, func(context.Context, AgentTask) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidDependency))
}

func TestZeroRetriesAttemptsExactlyOnce(t *testing.T) {
	var attempts int32
	tasks := []AgentTask{{ID: "a"}}
	r := New(Config{MaxConcurrency: 1, RetryOnFailure: false, RetryDelay: time.Millisecond})

	result, err := r.Run(context.Background(), tasks, func(context.Context, AgentTask) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), attempts)
	assert.Equal(t, 1, result.Failed)
}

func TestRetriesEventuallySucceed(t *testing.T) {
	var attempts int32
	tasks := []AgentTask{{ID: "a"}}
	r := New(Config{MaxConcurrency: 1, RetryOnFailure: true, MaxRetries: 3, RetryDelay: time.Millisecond})

	result, err := r.Run(context.Background(), tasks, func(context.Context, AgentTask) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, int32(3), attempts)
}

func TestStopOnFirstErrorSkipsDependents(t *testing.T) {
	tasks := []AgentTask{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	r := New(Config{MaxConcurrency: 2, StopOnFirstError: true, RetryOnFailure: false})

	result, err := r.Run(context.Background(), tasks, func(_ context.Context, task AgentTask) (any, error) {
		if task.ID == "a" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
}

func TestTaskTimeout(t *testing.T) {
	tasks := []AgentTask{{ID: "slow"}}
	timeout := 10 * time.Millisecond
	tasks[0].Timeout = &timeout
	r := New(Config{MaxConcurrency: 1, RetryOnFailure: false})

	result, err := r.Run(context.Background(), tasks, func(ctx context.Context, _ AgentTask) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}
