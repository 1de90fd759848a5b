package skill

import (
	"errors"
	"fmt"
)

// Kind classifies SkillEngine errors.
type Kind int8

const (
	// KindInvalidConfig indicates the skill is missing required config for its mode.
	KindInvalidConfig Kind = iota
	// KindCyclicDependency indicates a workflow's step graph has a cycle.
	KindCyclicDependency
	// KindMissingDependency indicates a step depends on an unknown step id.
	KindMissingDependency
	// KindProviderError indicates the LLM backend call failed.
	KindProviderError
	// KindExecutionFailed indicates a step exhausted its retries.
	KindExecutionFailed
	// KindNotImplemented indicates Agent mode, which engines reject outright.
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindCyclicDependency:
		return "cyclic_dependency"
	case KindMissingDependency:
		return "missing_dependency"
	case KindProviderError:
		return "provider_error"
	case KindExecutionFailed:
		return "execution_failed"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "unknown"
	}
}

// Error is the skill package's sentinel error type.
type Error struct {
	Err     error
	Message string
	StepID  string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("skill: %s: step %s: %s", e.Kind, e.StepID, e.detail())
	}
	return fmt.Sprintf("skill: %s: %s", e.Kind, e.detail())
}

func (e *Error) detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapStepError(kind Kind, stepID string, cause error) *Error {
	return &Error{Kind: kind, StepID: stepID, Err: cause}
}

// Is reports whether err is a skill *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
