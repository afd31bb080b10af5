package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoAgents is returned when a session is created without participants.
	ErrNoAgents = errors.New("session requires at least one agent")
	// ErrEmptyInstruction is returned for blank director instructions.
	ErrEmptyInstruction = errors.New("director instruction must not be empty")
)

// SessionSpec is the creation input of a Session.
type SessionSpec struct {
	Scenario      string  `json:"scenario"`
	InitialPrompt string  `json:"initialPrompt"`
	Agents        []Agent `json:"agents"`
	SecretRoles   bool    `json:"secretRoles,omitempty"`
}

// Session is one running conversation: its roster, run flag, turn counter,
// pending director instructions, live statuses and transcript.
//
// Contract:
//   - The roster order is fixed at creation and drives round-robin selection
//   - TurnIndex only ever increases
//   - The director queue is FIFO
//   - Secret roles are assigned at most once
//
// All methods are safe for concurrent use.
type Session struct {
	ID            string
	Scenario      string
	InitialPrompt string
	SecretRoles   bool
	CreatedAt     time.Time

	transcript *Transcript

	mu            sync.Mutex
	agents        []Agent
	running       bool
	turnIndex     int
	directives    []string
	statuses      map[string]Status
	rolesAssigned bool
}

// NewSession validates the spec and returns an idle session.
func NewSession(id string, spec SessionSpec) (*Session, error) {
	if len(spec.Agents) == 0 {
		return nil, ErrNoAgents
	}
	seen := make(map[string]struct{}, len(spec.Agents))
	for _, a := range spec.Agents {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	statuses := make(map[string]Status, len(spec.Agents))
	for _, a := range spec.Agents {
		statuses[a.ID] = StatusIdle
	}
	return &Session{
		ID:            id,
		Scenario:      spec.Scenario,
		InitialPrompt: spec.InitialPrompt,
		SecretRoles:   spec.SecretRoles,
		CreatedAt:     time.Now().UTC(),
		transcript:    NewTranscript(),
		agents:        append([]Agent(nil), spec.Agents...),
		statuses:      statuses,
	}, nil
}

// Transcript returns the session transcript.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Agents returns a copy of the roster in turn order.
func (s *Session) Agents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Agent(nil), s.agents...)
}

// IsRunning reports the run flag.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetRunning updates the run flag and reports whether it changed.
func (s *Session) SetRunning(running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == running {
		return false
	}
	s.running = running
	return true
}

// TurnIndex returns the number of turns taken so far.
func (s *Session) TurnIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnIndex
}

// EnqueueDirective appends a director instruction to the pending queue.
func (s *Session) EnqueueDirective(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInstruction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directives = append(s.directives, text)
	return nil
}

// PendingDirectives returns the number of queued director instructions.
func (s *Session) PendingDirectives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.directives)
}

// Turn describes the work claimed by BeginTurn.
type Turn struct {
	Index     int
	Agent     Agent
	Directive string // dequeued director instruction, empty if none
}

// BeginTurn atomically checks the run flag, dequeues at most one director
// instruction and selects agents[turnIndex mod N]. It returns false when the
// session is not running, in which case nothing is dequeued.
func (s *Session) BeginTurn() (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return Turn{}, false
	}
	t := Turn{Index: s.turnIndex, Agent: s.agents[s.turnIndex%len(s.agents)]}
	if len(s.directives) > 0 {
		t.Directive = s.directives[0]
		s.directives = s.directives[1:]
	}
	return t, true
}

// AdvanceTurn increments the turn counter regardless of the turn outcome.
func (s *Session) AdvanceTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnIndex++
}

// SetStatus records the live status of an agent.
func (s *Session) SetStatus(agentID string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[agentID] = st
}

// Statuses returns a copy of the status map keyed by agent id.
func (s *Session) Statuses() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Status, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// AssignSecretRoles gives the agent at index pick the secret directive and
// every other agent the complementary one. It runs at most once per session
// and reports whether the assignment happened on this call.
func (s *Session) AssignSecretRoles(pick int, secret, others string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rolesAssigned || pick < 0 || pick >= len(s.agents) {
		return false
	}
	for i := range s.agents {
		if i == pick {
			s.agents[i].SecretInstruction = secret
		} else {
			s.agents[i].SecretInstruction = others
		}
	}
	s.rolesAssigned = true
	return true
}

// RolesAssigned reports whether secret roles have been handed out.
func (s *Session) RolesAssigned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesAssigned
}

// SessionSnapshot is a point-in-time, observer safe view of a session.
type SessionSnapshot struct {
	ID                string            `json:"sessionId"`
	Scenario          string            `json:"scenario"`
	InitialPrompt     string            `json:"initialPrompt"`
	Running           bool              `json:"isRunning"`
	TurnIndex         int               `json:"turnIndex"`
	Agents            []Agent           `json:"agents"`
	Statuses          map[string]Status `json:"statuses"`
	PendingDirectives int               `json:"pendingDirectives"`
	Entries           int               `json:"entries"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Snapshot returns the current observer view.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:            s.ID,
		Scenario:      s.Scenario,
		InitialPrompt: s.InitialPrompt,
		CreatedAt:     s.CreatedAt,
		Entries:       s.transcript.Len(),
		Statuses:      s.Statuses(),
	}
	s.mu.Lock()
	snap.Running = s.running
	snap.TurnIndex = s.turnIndex
	snap.Agents = append([]Agent(nil), s.agents...)
	snap.PendingDirectives = len(s.directives)
	s.mu.Unlock()
	return snap
}
