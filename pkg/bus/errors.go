package bus

import (
	"errors"
	"fmt"
)

// Kind classifies MessageBus errors so callers can branch with errors.Is
// instead of string matching.
type Kind int8

const (
	// KindAgentNotFound indicates the target agent has no subscription.
	KindAgentNotFound Kind = iota
	// KindQueueFull indicates a recipient's queue is at max_queue_size.
	KindQueueFull
	// KindMessageExpired indicates a message's expiration had already
	// passed at send time.
	KindMessageExpired
	// KindRequestTimeout indicates a pending request's expiration had
	// passed by the time respond() was called.
	KindRequestTimeout
	// KindInvalidMessage indicates an operation was attempted against a
	// message that does not satisfy its preconditions (e.g. responding
	// to a message that never required a response).
	KindInvalidMessage
	// KindSerializationError indicates a history/queue snapshot could
	// not be produced.
	KindSerializationError
	// KindNoResponse indicates respond() was called with no matching
	// pending request.
	KindNoResponse
	// KindChannelClosed indicates the one-shot reply sink was already
	// dropped by its receiver.
	KindChannelClosed
)

func (k Kind) String() string {
	switch k {
	case KindAgentNotFound:
		return "agent_not_found"
	case KindQueueFull:
		return "queue_full"
	case KindMessageExpired:
		return "message_expired"
	case KindRequestTimeout:
		return "request_timeout"
	case KindInvalidMessage:
		return "invalid_message"
	case KindSerializationError:
		return "serialization_error"
	case KindNoResponse:
		return "no_response"
	case KindChannelClosed:
		return "channel_closed"
	default:
		return "unknown"
	}
}

// Error is the bus package's sentinel error type. It wraps an optional
// cause and carries a Kind so callers can do errors.Is(err, bus.KindX)
// style checks via Is, or errors.As for the concrete type.
type Error struct {
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bus: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("bus: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("bus: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// Is reports whether err is a bus *Error of the given kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or a zero Kind (KindAgentNotFound) with
// ok=false if err is not a bus *Error.
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}
