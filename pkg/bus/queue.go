package bus

import (
	"container/heap"
	"sort"
	"time"
)

// queueEntry wraps a Message with its position in the global sequence
// counter, used to break exact-timestamp ties deterministically. This is
// the Go analogue of the ordering the original Rust implementation left
// ambiguous for a max-heap with equal priority and equal timestamp: here
// the ordering key is the explicit triple (−priority, timestamp, seq).
type queueEntry struct {
	msg Message
	seq uint64
}

// less implements the ordering contract: strictly descending priority;
// ties broken by earlier timestamp first; further ties (identical
// timestamps) broken by insertion order.
func (e queueEntry) less(o queueEntry) bool {
	if e.msg.Priority != o.msg.Priority {
		return e.msg.Priority > o.msg.Priority
	}
	if !e.msg.CreatedAt.Equal(o.msg.CreatedAt) {
		return e.msg.CreatedAt.Before(o.msg.CreatedAt)
	}
	return e.seq < o.seq
}

// priorityQueue is a container/heap.Interface over queueEntry, giving us
// an O(log n) priority queue per agent.
type priorityQueue []queueEntry

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].less(pq[j]) }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(queueEntry)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// agentQueue is the per-agent bounded message container: a priority heap
// plus the capacity check enqueue needs.
type agentQueue struct {
	heap     priorityQueue
	maxSize  int
}

func newAgentQueue(maxSize int) *agentQueue {
	q := &agentQueue{maxSize: maxSize}
	heap.Init(&q.heap)
	return q
}

func (q *agentQueue) len() int { return q.heap.Len() }

func (q *agentQueue) full() bool { return q.maxSize > 0 && q.heap.Len() >= q.maxSize }

func (q *agentQueue) push(m Message, seq uint64) {
	heap.Push(&q.heap, queueEntry{msg: m, seq: seq})
}

// popReady pops up to n highest-priority, non-expired messages. Messages
// found expired along the way are discarded lazily rather than proactively
// swept, so a dequeue call never does more work than it needs to.
func (q *agentQueue) popReady(n int, now time.Time) []Message {
	out := make([]Message, 0, n)
	for q.heap.Len() > 0 && len(out) < n {
		entry := heap.Pop(&q.heap).(queueEntry) //nolint:errcheck,forcetypeassert
		if entry.msg.IsExpired(now) {
			continue
		}
		out = append(out, entry.msg)
	}
	return out
}

// popAllReady drains the entire queue, discarding expired messages.
func (q *agentQueue) popAllReady(now time.Time) []Message {
	return q.popReady(q.heap.Len(), now)
}

// snapshot returns a non-destructive, priority-ordered copy of the queue's
// current contents, including any not-yet-cleaned expired entries — the
// spec's get_queue contract intentionally does not filter expirations so
// that it remains a pure, side-effect-free read.
func (q *agentQueue) snapshot() []Message {
	entries := make([]queueEntry, len(q.heap))
	copy(entries, q.heap)
	sort.Slice(entries, func(i, j int) bool { return entries[i].less(entries[j]) })
	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg
	}
	return out
}

// removeExpired drops every expired entry from the queue and returns how
// many were removed. Used by cleanup_expired.
func (q *agentQueue) removeExpired(now time.Time) int {
	kept := q.heap[:0]
	removed := 0
	for _, e := range q.heap {
		if e.msg.IsExpired(now) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.heap = kept
	heap.Init(&q.heap)
	return removed
}
