package bus

import (
	"fmt"
	"sync"
	"time"
)

// Config tunes the resource bounds of a Bus.
type Config struct {
	// MaxQueueSize bounds each agent's queue; 0 means unbounded. Default 100.
	MaxQueueSize int
	// MaxHistorySize bounds the history ring buffer; oldest evicted first.
	// Default 1000.
	MaxHistorySize int
}

// DefaultConfig returns the default resource bounds.
func DefaultConfig() Config {
	return Config{MaxQueueSize: 100, MaxHistorySize: 1000}
}

// Stats is a point-in-time snapshot returned by Bus.Stats.
type Stats struct {
	SubscriptionCount int
	TotalQueued       int
	HistorySize       int
	MaxQueueSize      int
	MaxHistorySize    int
}

// Bus is a single logical actor: every operation below conceptually
// executes under one lock. Concurrent callers serialize through the
// shared *Bus value; there is no per-agent or per-operation sharding.
type Bus struct {
	mu            sync.Mutex
	subscriptions map[string]Subscription
	queues        map[string]*agentQueue
	history       []Message
	pending       map[string]*PendingRequest
	seq           uint64
	cfg           Config
}

// New constructs an empty Bus with the given resource bounds.
func New(cfg Config) *Bus {
	if cfg.MaxQueueSize < 0 {
		cfg.MaxQueueSize = 0
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 1000
	}
	return &Bus{
		subscriptions: make(map[string]Subscription),
		queues:        make(map[string]*agentQueue),
		pending:       make(map[string]*PendingRequest),
		cfg:           cfg,
	}
}

// Subscribe registers or updates an agent's subscription. An empty types
// set matches every message type. Idempotent: calling it again replaces
// the prior type set and reactivates the subscription, but never drops an
// already-queued message.
func (b *Bus) Subscribe(agent string, types []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	b.subscriptions[agent] = Subscription{Types: set, Active: true}
	if _, ok := b.queues[agent]; !ok {
		b.queues[agent] = newAgentQueue(b.cfg.MaxQueueSize)
	}
}

// Unsubscribe marks an agent's subscription inactive. Queued messages for
// that agent remain and can still be dequeued.
func (b *Bus) Unsubscribe(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscriptions[agent]
	if !ok {
		return
	}
	sub.Active = false
	b.subscriptions[agent] = sub
}

// Send delivers message according to its Target. It always appends the
// message to history first (so a failed/partial send is still observable
// there), then attempts delivery.
func (b *Bus) Send(message Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	if message.IsExpired(now) {
		return newError(KindMessageExpired, fmt.Sprintf("message %s expired before send", message.ID))
	}

	b.appendHistoryLocked(message)

	switch message.Target.Kind {
	case TargetSingle:
		return b.enqueueLocked(message.Target.Agent, message)
	case TargetMulti:
		for _, agent := range message.Target.Recipients {
			if err := b.enqueueLocked(agent, message); err != nil {
				return err
			}
		}
		return nil
	case TargetBroadcast:
		for agent, sub := range b.subscriptions {
			if agent == message.SenderID {
				continue
			}
			if !sub.Matches(message.Type) {
				continue
			}
			if err := b.enqueueLocked(agent, message); err != nil {
				return err
			}
		}
		return nil
	default:
		return newError(KindInvalidMessage, "unknown target kind")
	}
}

// enqueueLocked appends message to agent's queue, creating the queue if
// the agent has never subscribed (so a send to an unknown agent simply
// creates a dormant queue rather than failing, the way a dispatcher
// lazily creates delivery channels on first use).
func (b *Bus) enqueueLocked(agent string, message Message) error {
	q, ok := b.queues[agent]
	if !ok {
		q = newAgentQueue(b.cfg.MaxQueueSize)
		b.queues[agent] = q
	}
	if q.full() {
		return newError(KindQueueFull, fmt.Sprintf("agent %s queue is full", agent))
	}
	b.seq++
	q.push(message, b.seq)
	return nil
}

func (b *Bus) appendHistoryLocked(message Message) {
	b.history = append(b.history, message)
	if len(b.history) > b.cfg.MaxHistorySize {
		overflow := len(b.history) - b.cfg.MaxHistorySize
		b.history = b.history[overflow:]
	}
}

// Dequeue pops up to n highest-priority, non-expired messages for agent.
func (b *Bus) Dequeue(agent string, n int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[agent]
	if !ok {
		return nil
	}
	return q.popReady(n, time.Now().UTC())
}

// DequeueAll pops every ready (non-expired) message for agent.
func (b *Bus) DequeueAll(agent string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[agent]
	if !ok {
		return nil
	}
	return q.popAllReady(time.Now().UTC())
}

// GetQueue returns a non-destructive, priority-ordered snapshot of agent's
// queue, including any not-yet-cleaned expired entries.
func (b *Bus) GetQueue(agent string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[agent]
	if !ok {
		return nil
	}
	return q.snapshot()
}

// PrepareRequest builds a requires-response message addressed to target,
// registers a pending-request record with a fresh one-shot reply sink,
// sends it, and returns the request id plus a ReplyHandle. If the send
// fails the pending record is removed and never observable.
func (b *Bus) PrepareRequest(to, msgType string, payload any, from string, timeout time.Duration) (string, ReplyHandle, error) {
	now := time.Now().UTC()
	expires := now.Add(timeout)

	msg := NewMessage(from, msgType, SingleTarget(to), payload, 0)
	msg.RequiresResponse = true
	msg.ExpiresAt = &expires

	reply := make(chan any, 1)
	pr := &PendingRequest{
		RequestID:   msg.ID,
		SenderID:    from,
		TargetAgent: to,
		MessageType: msgType,
		SentAt:      now,
		ExpiresAt:   expires,
		reply:       reply,
	}

	b.mu.Lock()
	b.pending[msg.ID] = pr
	b.mu.Unlock()

	if err := b.Send(msg); err != nil {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		return "", ReplyHandle{}, err
	}

	return msg.ID, ReplyHandle{ch: reply}, nil
}

// Respond fulfills the pending request identified by requestID: it
// delivers payload through the reply sink and also enqueues a response
// message (type "<original>_response", InReplyTo=requestID) on the
// original sender's queue, so a late consumer can retrieve it from
// history or the queue by id instead of only via the reply sink.
func (b *Bus) Respond(requestID string, payload any) error {
	b.mu.Lock()
	pr, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	var original Message
	var haveOriginal bool
	if !ok {
		for i := len(b.history) - 1; i >= 0; i-- {
			if b.history[i].ID == requestID {
				original = b.history[i]
				haveOriginal = true
				break
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		if haveOriginal && !original.RequiresResponse {
			return newError(KindInvalidMessage, fmt.Sprintf("message %s did not require a response", requestID))
		}
		return newError(KindNoResponse, fmt.Sprintf("no pending request %s", requestID))
	}

	now := time.Now().UTC()
	if now.After(pr.ExpiresAt) {
		return newError(KindRequestTimeout, fmt.Sprintf("request %s expired", requestID))
	}

	select {
	case pr.reply <- payload:
	default:
		return newError(KindChannelClosed, fmt.Sprintf("reply sink for %s already closed", requestID))
	}

	responseType := pr.MessageType + "_response"
	inReplyTo := requestID
	responseMsg := NewMessage(pr.TargetAgent, responseType, SingleTarget(pr.SenderID), payload, 0)
	responseMsg.InReplyTo = &inReplyTo

	return b.Send(responseMsg)
}

// CleanupExpired scans every queue and removes expired messages, returning
// the count removed.
func (b *Bus) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for _, q := range b.queues {
		removed += q.removeExpired(now)
	}
	return removed
}

// CleanupExpiredRequests scans pending requests and drops those past
// their expiration, returning the count removed.
func (b *Bus) CleanupExpiredRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for id, pr := range b.pending {
		if now.After(pr.ExpiresAt) {
			close(pr.reply)
			delete(b.pending, id)
			removed++
		}
	}
	return removed
}

// Stats returns a point-in-time snapshot of bus occupancy.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, q := range b.queues {
		total += q.len()
	}
	return Stats{
		SubscriptionCount: len(b.subscriptions),
		TotalQueued:       total,
		HistorySize:       len(b.history),
		MaxQueueSize:      b.cfg.MaxQueueSize,
		MaxHistorySize:    b.cfg.MaxHistorySize,
	}
}

// FindMessageInHistory looks up a message by id in the history ring
// buffer. Supplemental read-only lookup carried over from the original
// implementation's history search, rounding out respond()'s "so late
// consumers can retrieve it by id" contract.
func (b *Bus) FindMessageInHistory(id string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.history) - 1; i >= 0; i-- {
		if b.history[i].ID == id {
			return b.history[i], true
		}
	}
	return Message{}, false
}

// GetResponsesFromHistory returns every history entry whose InReplyTo
// matches requestID, in the order they were appended.
func (b *Bus) GetResponsesFromHistory(requestID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.history {
		if m.InReplyTo != nil && *m.InReplyTo == requestID {
			out = append(out, m)
		}
	}
	return out
}
