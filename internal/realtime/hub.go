package realtime

import (
	"sync"

	"github.com/anonto42/ridehub/backend/internal/metrics"
)

// DefaultSendBuffer is the outbound queue length of a member.
const DefaultSendBuffer = 64

// Member is one attached connection as seen by the Hub. Frames are queued on
// a buffered channel that is never closed; Done signals the member is gone.
type Member struct {
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewMember constructs a Member with the given outbound buffer size.
func NewMember(buffer int) *Member {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Member{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Outbound yields queued frames.
func (m *Member) Outbound() <-chan []byte { return m.send }

// Done is closed once the member has been closed.
func (m *Member) Done() <-chan struct{} { return m.done }

// Enqueue queues a frame without blocking. It reports false when the member
// is closed or its queue is full.
func (m *Member) Enqueue(frame []byte) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the member as gone. Safe to call more than once.
func (m *Member) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Hub keeps the members currently attached to each topic. It is process-local
// and owned by whoever constructs it; empty topics are dropped on the last
// unsubscribe.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Member]struct{}
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Member]struct{})}
}

// Subscribe adds m to topic.
func (h *Hub) Subscribe(topic string, m *Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Member]struct{})
		h.topics[topic] = set
	}
	set[m] = struct{}{}
}

// Unsubscribe removes m from topic. Removing an absent member is a no-op.
func (h *Hub) Unsubscribe(topic string, m *Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
}

// Publish hands frame to every member of topic and returns how many accepted
// it. Slow members are skipped.
func (h *Hub) Publish(topic string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for m := range h.topics[topic] {
		if m.Enqueue(frame) {
			delivered++
			continue
		}
		metrics.DroppedFrames.Inc()
	}
	return delivered
}

// Members returns the number of members attached to topic.
func (h *Hub) Members(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// CloseAll closes every attached member, which ends their sessions.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, set := range h.topics {
		for m := range set {
			m.Close()
		}
		delete(h.topics, topic)
	}
}
