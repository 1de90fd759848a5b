// Package bus provides an in-process, priority-ordered message router
// between named agents, with broadcast fanout, bounded per-agent queues, a
// history ring buffer, and one-shot request/response correlation.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind discriminates the three delivery shapes a Message can carry.
type TargetKind int8

const (
	// TargetSingle delivers to exactly one named agent.
	TargetSingle TargetKind = iota
	// TargetBroadcast delivers to every active subscriber matching the
	// message type, except the sender.
	TargetBroadcast
	// TargetMulti delivers to each of an explicit recipient list.
	TargetMulti
)

// Target describes where a Message is headed.
type Target struct {
	Agent      string
	Recipients []string
	Kind       TargetKind
}

// SingleTarget addresses exactly one agent.
func SingleTarget(agent string) Target {
	return Target{Kind: TargetSingle, Agent: agent}
}

// BroadcastTarget addresses every matching, active subscriber but the sender.
func BroadcastTarget() Target {
	return Target{Kind: TargetBroadcast}
}

// MultiTarget addresses an explicit list of agents.
func MultiTarget(agents ...string) Target {
	return Target{Kind: TargetMulti, Recipients: agents}
}

// Message is the unit of routing. Payload is an opaque structured value
// (typically a map[string]any / []any / scalar JSON-like tree); the bus
// never interprets it.
type Message struct {
	ExpiresAt       *time.Time
	InReplyTo       *string
	Payload         any
	ID              string
	SenderID        string
	Type            string
	CreatedAt       time.Time
	Target          Target
	Priority        uint8
	RequiresResponse bool
}

// NewMessage constructs a Message with a fresh UUID and the current time,
// the way callers normally build one before calling Bus.Send.
func NewMessage(sender, msgType string, target Target, payload any, priority uint8) Message {
	return Message{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Type:      msgType,
		Target:    target,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

// IsExpired reports whether the message's expiration, if any, has passed
// as of now. A message with ExpiresAt == now is not yet expired: only
// strictly-past expirations count.
func (m Message) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// Subscription records which message types an agent consumes. An empty
// Types set means "all types". Inactive subscriptions (after Unsubscribe)
// stop matching new sends but their queued messages remain until dequeued.
type Subscription struct {
	Types  map[string]struct{}
	Active bool
}

// Matches reports whether this subscription should receive a message of
// the given type.
func (s Subscription) Matches(msgType string) bool {
	if !s.Active {
		return false
	}
	if len(s.Types) == 0 {
		return true
	}
	_, ok := s.Types[msgType]
	return ok
}

// PendingRequest links a sent request message to the one-shot reply sink
// its sender is awaiting. It is consumed exactly once, by Respond or by
// CleanupExpiredRequests once it has expired.
type PendingRequest struct {
	reply       chan any
	RequestID   string
	SenderID    string
	TargetAgent string
	MessageType string
	SentAt      time.Time
	ExpiresAt   time.Time
}

// ReplyHandle is the single-producer/single-consumer view of a pending
// request's reply sink, returned to the caller of PrepareRequest.
type ReplyHandle struct {
	ch <-chan any
}

// Wait blocks until a reply is delivered, the reply sink is closed, or the
// given deadline passes — whichever comes first.
func (h ReplyHandle) Wait(deadline time.Time) (any, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case v, ok := <-h.ch:
		if !ok {
			return nil, newError(KindChannelClosed, "reply sink closed without fulfillment")
		}
		return v, nil
	case <-timer.C:
		return nil, newError(KindRequestTimeout, "request expired before a response arrived")
	}
}
