package testutil

import (
	"fmt"

	"github.com/hupe1980/agentstage/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").Topic("storm").Agent("a1", "Ada", "gpt-4o").Build()
type SessionBuilder struct {
	id      string
	spec    core.SessionSpec
	entries []core.Entry
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, spec: core.SessionSpec{Scenario: "Test"}}
}

// Scenario sets the scenario label (chainable).
func (b *SessionBuilder) Scenario(s string) *SessionBuilder { b.spec.Scenario = s; return b }

// Topic sets the seed topic (chainable).
func (b *SessionBuilder) Topic(t string) *SessionBuilder { b.spec.InitialPrompt = t; return b }

// SecretRoles enables secret role assignment (chainable).
func (b *SessionBuilder) SecretRoles() *SessionBuilder { b.spec.SecretRoles = true; return b }

// Agent appends a participant with the given id, name and model (chainable).
func (b *SessionBuilder) Agent(id, name, model string) *SessionBuilder {
	b.spec.Agents = append(b.spec.Agents, core.Agent{ID: id, Name: name, Model: model})
	return b
}

// Agents appends fully specified participants (chainable).
func (b *SessionBuilder) Agents(agents ...core.Agent) *SessionBuilder {
	b.spec.Agents = append(b.spec.Agents, agents...)
	return b
}

// Entries pre-populates the transcript (chainable).
func (b *SessionBuilder) Entries(entries ...core.Entry) *SessionBuilder {
	b.entries = append(b.entries, entries...)
	return b
}

// Spec returns the accumulated creation input.
func (b *SessionBuilder) Spec() core.SessionSpec { return b.spec }

// Build returns the session. It panics on invalid input since it is only
// used with literal test fixtures.
func (b *SessionBuilder) Build() *core.Session {
	s, err := core.NewSession(b.id, b.spec)
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid session fixture: %v", err))
	}
	for _, e := range b.entries {
		s.Transcript().Append(e)
	}
	return s
}
