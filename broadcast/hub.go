package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
)

// MessageType discriminates pushed messages.
type MessageType string

const (
	TypeMessage       MessageType = "message"
	TypeStatusUpdate  MessageType = "status_update"
	TypeSessionStatus MessageType = "session_status"
)

// Session run states carried by session_status messages.
const (
	SessionRunning = "running"
	SessionPaused  = "paused"
)

// Message is one push to observers, encoded as {"type": ..., "data": ...}.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// AgentStatus is the incremental status_update payload.
type AgentStatus struct {
	AgentID string      `json:"agentId"`
	Status  core.Status `json:"status"`
}

// StatusSnapshot is the full status_update payload.
type StatusSnapshot struct {
	Statuses map[string]core.Status `json:"statuses"`
}

// SessionState is the session_status payload.
type SessionState struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// HubOptions configures a Hub.
type HubOptions struct {
	// Buffer is the per-subscriber channel capacity.
	Buffer int
	Logger logging.Logger
}

// Hub routes messages to the subscribers of each session. It is safe for
// concurrent use.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	logger  logging.Logger
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Buffer: 64, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: opts.Buffer,
		logger: logging.WithComponent(opts.Logger, "broadcast"),
	}
}

// Subscription is one observer attached to a session. C is closed when the
// subscription or its session is closed.
type Subscription struct {
	C <-chan Message

	ch        chan Message
	hub       *Hub
	sessionID string
	once      sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.sessionID]; ok {
			if _, ok := set[s]; ok {
				delete(set, s)
				close(s.ch)
			}
			if len(set) == 0 {
				delete(s.hub.subs, s.sessionID)
			}
		}
	})
}

// Subscribe attaches a new observer to sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Message, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, sessionID: sessionID}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of observers of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Dropped returns how many deliveries were discarded because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish delivers msg to every subscriber of sessionID without blocking and
// returns the number of subscribers that received it.
func (h *Hub) Publish(sessionID string, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Debug("subscriber buffer full, message dropped", "session_id", sessionID, "type", msg.Type)
		}
	}
	return delivered
}

// PublishEntry pushes a transcript entry.
func (h *Hub) PublishEntry(sessionID string, e core.Entry) int {
	return h.Publish(sessionID, Message{Type: TypeMessage, Data: e})
}

// PublishStatus pushes one agent's status change.
func (h *Hub) PublishStatus(sessionID, agentID string, st core.Status) int {
	return h.Publish(sessionID, Message{Type: TypeStatusUpdate, Data: AgentStatus{AgentID: agentID, Status: st}})
}

// PublishStatuses pushes the full status map.
func (h *Hub) PublishStatuses(sessionID string, statuses map[string]core.Status) int {
	return h.Publish(sessionID, Message{Type: TypeStatusUpdate, Data: StatusSnapshot{Statuses: statuses}})
}

// PublishSessionState pushes a running/paused transition.
func (h *Hub) PublishSessionState(sessionID string, running bool) int {
	state := SessionPaused
	if running {
		state = SessionRunning
	}
	return h.Publish(sessionID, Message{Type: TypeSessionStatus, Data: SessionState{SessionID: sessionID, Status: state}})
}

// CloseSession detaches every subscriber of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		close(sub.ch)
	}
	delete(h.subs, sessionID)
}

// Close detaches every subscriber of every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
