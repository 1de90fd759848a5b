package skill

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 60 * time.Second
)

// Engine executes SkillDefinitions against a single LLMBackend.
type Engine struct {
	backend LLMBackend
}

// New constructs an Engine bound to backend.
func New(backend LLMBackend) *Engine {
	return &Engine{backend: backend}
}

// Execute dispatches def by its execution mode. cb may be nil.
func (e *Engine) Execute(ctx context.Context, def SkillDefinition, userInput string, cb ExecutionCallback) SkillExecutionResult {
	cb = callbackOrNoop(cb)

	switch def.Mode {
	case ModePrompt:
		return e.executePrompt(ctx, def, userInput, cb)
	case ModeWorkflow:
		return e.executeWorkflow(ctx, def, userInput, cb)
	case ModeAgent:
		err := newError(KindNotImplemented, "agent mode is not implemented by this engine")
		return SkillExecutionResult{Success: false, Error: err}
	default:
		err := newError(KindInvalidConfig, "unknown execution mode")
		return SkillExecutionResult{Success: false, Error: err}
	}
}

func (e *Engine) executePrompt(ctx context.Context, def SkillDefinition, userInput string, cb ExecutionCallback) SkillExecutionResult {
	cb.OnStepStart(def.Name, def.Name, 1)

	output, err := e.backend.Chat(ctx, def.Body, userInput, def.PreferredModel)
	if err != nil {
		providerErr := wrapStepError(KindProviderError, def.Name, err)
		cb.OnStepError(def.Name, providerErr.Error(), false)
		cb.OnComplete(false, nil)
		return SkillExecutionResult{
			Success: false, Error: providerErr,
			CommandName: &def.Name, Model: def.PreferredModel, AllowedTools: def.AllowedTools,
		}
	}

	cb.OnStepComplete(def.Name, output)
	cb.OnComplete(true, &output)
	return SkillExecutionResult{
		Success: true, Output: &output,
		CommandName: &def.Name, Model: def.PreferredModel, AllowedTools: def.AllowedTools,
	}
}

func (e *Engine) executeWorkflow(ctx context.Context, def SkillDefinition, userInput string, cb ExecutionCallback) SkillExecutionResult {
	if def.Workflow == nil {
		err := newError(KindInvalidConfig, "workflow mode requires a workflow definition")
		return SkillExecutionResult{Success: false, Error: err}
	}
	wf := def.Workflow

	order, err := topoSort(wf.Steps)
	if err != nil {
		return SkillExecutionResult{Success: false, Error: err}
	}

	byID := make(map[string]WorkflowStep, len(wf.Steps))
	for _, st := range wf.Steps {
		byID[st.ID] = st
	}

	vars := map[string]string{"user_input": userInput}
	var results []StepResult
	var finalOutput string
	total := len(order)

	for _, stepID := range order {
		step := byID[stepID]
		cb.OnStepStart(step.ID, step.Name, total)

		output, stepErr := e.runStepWithRetry(ctx, step, vars, wf.MaxRetries, cb)
		if stepErr != nil {
			results = append(results, StepResult{StepID: step.ID, Name: step.Name, Success: false, Error: stepErr})
			if !wf.ContinueOnFailure {
				cb.OnComplete(false, nil)
				return SkillExecutionResult{
					Success: false, Error: stepErr, StepsCompleted: results,
					CommandName: &def.Name, Model: def.PreferredModel, AllowedTools: def.AllowedTools,
				}
			}
			bindOutput(vars, step, "")
			continue
		}

		bindOutput(vars, step, output)
		finalOutput = output
		cb.OnStepComplete(step.ID, output)
		results = append(results, StepResult{StepID: step.ID, Name: step.Name, Success: true, Output: output})
	}

	success := allSucceeded(results)
	var finalPtr *string
	if success {
		finalPtr = &finalOutput
	}
	cb.OnComplete(success, finalPtr)

	return SkillExecutionResult{
		Success: success, Output: finalPtr, StepsCompleted: results,
		CommandName: &def.Name, Model: def.PreferredModel, AllowedTools: def.AllowedTools,
	}
}

func allSucceeded(results []StepResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

func bindOutput(vars map[string]string, step WorkflowStep, output string) {
	if step.OutputVariable != "" {
		vars[step.OutputVariable] = output
	}
	vars[step.ID+".output"] = output
}

// runStepWithRetry runs a single step's chat call, retrying up to
// maxRetries times. Attempt n>0 is preceded by a sleep of
// base_delay * 2^(n-1), base_delay=100ms, capped at 60s.
func (e *Engine) runStepWithRetry(ctx context.Context, step WorkflowStep, vars map[string]string, maxRetries int, cb ExecutionCallback) (string, error) {
	prompt := interpolate(step.PromptTemplate, vars)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return "", wrapStepError(KindExecutionFailed, step.ID, ctx.Err())
			case <-time.After(delay):
			}
		}

		output, err := e.backend.Chat(ctx, "", prompt, nil)
		if err == nil {
			return output, nil
		}
		lastErr = err

		willRetry := attempt < maxRetries
		cb.OnStepError(step.ID, err.Error(), willRetry)
	}

	return "", wrapStepError(KindExecutionFailed, step.ID, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// interpolate substitutes ${name} tokens using vars; unresolved
// references are left literal.
func interpolate(template string, vars map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "${")
		if start == -1 {
			b.WriteString(template[i:])
			break
		}
		start += i
		b.WriteString(template[i:start])

		end := strings.Index(template[start:], "}")
		if end == -1 {
			b.WriteString(template[start:])
			break
		}
		end += start

		name := template[start+2 : end]
		if val, ok := vars[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(template[start : end+1])
		}
		i = end + 1
	}
	return b.String()
}

// topoSort returns step ids in a valid topological order, or an error if
// the graph has a cycle or an unknown dependency.
func topoSort(steps []WorkflowStep) ([]string, error) {
	byID := make(map[string]WorkflowStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, &Error{Kind: KindMissingDependency, StepID: s.ID, Message: fmt.Sprintf("unknown dependency %s", dep)}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				return &Error{Kind: KindCyclicDependency, StepID: id, Message: "cycle detected in workflow steps"}
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
