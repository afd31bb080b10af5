package testutil

import "github.com/hupe1980/agentstage/core"

// EntryBuilder provides a fluent helper for constructing agent_turn entries.
// Example:
//
//	e := NewEntryBuilder(agent).Message("hello").Thought("hmm").Build()
type EntryBuilder struct {
	agent core.Agent
	out   core.TurnOutcome
}

// NewEntryBuilder starts an agent_turn entry for the given agent.
func NewEntryBuilder(a core.Agent) *EntryBuilder { return &EntryBuilder{agent: a} }

// Message sets the public message (chainable).
func (b *EntryBuilder) Message(m string) *EntryBuilder { b.out.PublicMessage = m; return b }

// Thought sets the private thought (chainable).
func (b *EntryBuilder) Thought(t string) *EntryBuilder { b.out.PrivateThought = t; return b }

// Tool attaches a successful tool invocation (chainable).
func (b *EntryBuilder) Tool(name, result string) *EntryBuilder {
	b.out.Tool = &core.ToolInvocation{Name: name, Result: result}
	return b
}

// ToolError attaches a failed tool invocation (chainable).
func (b *EntryBuilder) ToolError(name, msg string) *EntryBuilder {
	b.out.Tool = &core.ToolInvocation{Name: name, Error: msg, IsError: true}
	return b
}

// Build constructs the entry.
func (b *EntryBuilder) Build() core.Entry { return core.NewAgentTurn(b.agent, b.out) }

// Turn is shorthand for an agent_turn entry with only a public message.
func Turn(a core.Agent, msg string) core.Entry {
	return NewEntryBuilder(a).Message(msg).Build()
}
