package skill

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int // prompt substring -> remaining failures
	reply    func(systemPrompt, userMessage string) (string, error)
}

func (f *fakeBackend) Chat(_ context.Context, systemPrompt, userMessage string, _ *string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userMessage)
	f.mu.Unlock()
	return f.reply(systemPrompt, userMessage)
}

type recordingCallback struct {
	mu          sync.Mutex
	starts      []string
	completes   []string
	errors      []bool
	completeOK  bool
	finalOutput *string
	done        bool
}

func (r *recordingCallback) OnStepStart(stepID, _ string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, stepID)
}
func (r *recordingCallback) OnStepComplete(stepID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, stepID)
}
func (r *recordingCallback) OnStepError(_, _ string, willRetry bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, willRetry)
}
func (r *recordingCallback) OnComplete(success bool, output *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.completeOK = success
	r.finalOutput = output
}

func TestExecutePromptSuccess(t *testing.T) {
	backend := &fakeBackend{reply: func(sys, user string) (string, error) {
		return "response to: " + user, nil
	}}
	e := New(backend)
	cb := &recordingCallback{}

	def := SkillDefinition{Name: "greet", Mode: ModePrompt, Body: "you are helpful"}
	result := e.Execute(context.Background(), def, "hello", cb)

	require.True(t, result.Success)
	require.NotNil(t, result.Output)
	assert.Equal(t, "response to: hello", *result.Output)
	assert.True(t, cb.completeOK)
}

func TestExecuteAgentModeNotImplemented(t *testing.T) {
	e := New(&fakeBackend{reply: func(string, string) (string, error) { return "", nil }})
	result := e.Execute(context.Background(), SkillDefinition{Mode: ModeAgent}, "x", nil)
	require.False(t, result.Success)
	assert.True(t, Is(result.Error, KindNotImplemented))
}

func TestWorkflowRetrySucceedsThenRunsDependent(t *testing.T) {
	attemptsPerStep := map[string]int{}
	var mu sync.Mutex
	backend := &fakeBackend{reply: func(_, user string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		var step string
		switch {
		case contains(user, "step1"):
			step = "s1"
		default:
			step = "s2"
		}
		attemptsPerStep[step]++
		if attemptsPerStep[step] == 1 {
			return "", errors.New("transient failure")
		}
		return "ok-" + step, nil
	}}

	e := New(backend)
	cb := &recordingCallback{}

	def := SkillDefinition{
		Name: "two-step",
		Mode: ModeWorkflow,
		Workflow: &WorkflowDefinition{
			MaxRetries: 2,
			Steps: []WorkflowStep{
				{ID: "s1", Name: "Step One", PromptTemplate: "do step1 with ${user_input}", OutputVariable: "out1"},
				{ID: "s2", Name: "Step Two", PromptTemplate: "do step2 using ${out1}", DependsOn: []string{"s1"}, OutputVariable: "out2"},
			},
		},
	}

	result := e.Execute(context.Background(), def, "input", cb)

	require.True(t, result.Success)
	require.Len(t, result.StepsCompleted, 2)
	assert.Equal(t, []string{"s1", "s2"}, cb.starts)
	assert.Equal(t, []string{"s1", "s2"}, cb.completes)
	assert.Equal(t, []bool{true, true}, cb.errors)
	assert.True(t, cb.done)
	assert.True(t, cb.completeOK)
}

func TestWorkflowCycleRejected(t *testing.T) {
	e := New(&fakeBackend{reply: func(string, string) (string, error) { return "ok", nil }})
	def := SkillDefinition{
		Mode: ModeWorkflow,
		Workflow: &WorkflowDefinition{
			Steps: []WorkflowStep{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
		},
	}
	result := e.Execute(context.Background(), def, "x", nil)
	require.False(t, result.Success)
	assert.True(t, Is(result.Error, KindCyclicDependency))
}

func TestWorkflowMissingDependency(t *testing.T) {
	e := New(&fakeBackend{reply: func(string, string) (string, error) { return "ok", nil }})
	def := SkillDefinition{
		Mode: ModeWorkflow,
		Workflow: &WorkflowDefinition{
			Steps: []WorkflowStep{{ID: "a", DependsOn: []string{"ghost"}}},
		},
	}
	result := e.Execute(context.Background(), def, "x", nil)
	require.False(t, result.Success)
	assert.True(t, Is(result.Error, KindMissingDependency))
}

func TestInterpolationLeavesUnresolvedLiteral(t *testing.T) {
	got := interpolate("hello ${missing} and ${user_input}", map[string]string{"user_input": "world"})
	assert.Equal(t, "hello ${missing} and world", got)
}

func TestWorkflowContinueOnFailure(t *testing.T) {
	backend := &fakeBackend{reply: func(_, user string) (string, error) {
		if contains(user, "step1") {
			return "", errors.New("always fails")
		}
		return "ok", nil
	}}
	e := New(backend)

	def := SkillDefinition{
		Mode: ModeWorkflow,
		Workflow: &WorkflowDefinition{
			MaxRetries:        0,
			ContinueOnFailure: true,
			Steps: []WorkflowStep{
				{ID: "s1", PromptTemplate: "step1"},
				{ID: "s2", PromptTemplate: "step2", DependsOn: []string{"s1"}},
			},
		},
	}
	result := e.Execute(context.Background(), def, "x", nil)
	require.False(t, result.Success)
	require.Len(t, result.StepsCompleted, 2)
	assert.False(t, result.StepsCompleted[0].Success)
	assert.True(t, result.StepsCompleted[1].Success)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
