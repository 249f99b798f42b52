package chat

import "sync"

// conversationQueue serializes the inbound messages of one conversation.
// Whoever wins TryLock drains it; everyone else only enqueues.
type conversationQueue struct {
	key     string
	pending []Inbound
	mu      sync.Mutex
	locked  bool
}

func newConversationQueue(key string) *conversationQueue {
	return &conversationQueue{key: key}
}

func (q *conversationQueue) Enqueue(in Inbound) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, in)
}

func (q *conversationQueue) Dequeue() (Inbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Inbound{}, false
	}

	in := q.pending[0]
	q.pending = q.pending[1:]
	return in, true
}

func (q *conversationQueue) TryLock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.locked {
		return false
	}
	q.locked = true
	return true
}

// Unlock releases the queue. It reports false, keeping the lock, when
// messages arrived after the last Dequeue; the caller must keep draining.
func (q *conversationQueue) Unlock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		return false
	}
	q.locked = false
	return true
}

func (q *conversationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
