package core

import "time"

// EntryType discriminates the variants of a transcript Entry.
type EntryType string

const (
	EntrySystemMessage       EntryType = "system_message"
	EntryDirectorInstruction EntryType = "director_instruction"
	EntryAgentTurn           EntryType = "agent_turn"
	EntryError               EntryType = "error"
)

// Entry is one immutable record of the shared transcript. Only the fields of
// the variant named by Type are populated:
//   - system_message: Label, Text
//   - director_instruction: Text
//   - agent_turn: AgentID, AgentName, AgentColor, PublicMessage and the
//     optional PrivateThought, ToolUsed, ToolResult, ToolError
//   - error: AgentID, AgentName, Text
type Entry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`

	AgentID        string `json:"agentId,omitempty"`
	AgentName      string `json:"agentName,omitempty"`
	AgentColor     string `json:"agentColor,omitempty"`
	PublicMessage  string `json:"publicMessage,omitempty"`
	PrivateThought string `json:"privateThought,omitempty"`
	ToolUsed       string `json:"toolUsed,omitempty"`
	ToolResult     string `json:"toolResult,omitempty"`
	ToolError      bool   `json:"toolError,omitempty"`
}

func newEntry(t EntryType) Entry {
	// UTC strips the monotonic reading so entries survive a JSON round trip unchanged.
	return Entry{ID: NewID(), Type: t, Timestamp: time.Now().UTC()}
}

// NewSystemMessage creates a system_message entry such as the scenario banner.
func NewSystemMessage(label, text string) Entry {
	e := newEntry(EntrySystemMessage)
	e.Label = label
	e.Text = text
	return e
}

// NewDirectorInstruction creates a director_instruction entry.
func NewDirectorInstruction(text string) Entry {
	e := newEntry(EntryDirectorInstruction)
	e.Text = text
	return e
}

// TurnOutcome is the agent-produced part of an agent_turn entry.
type TurnOutcome struct {
	PublicMessage  string
	PrivateThought string
	Tool           *ToolInvocation
}

// NewAgentTurn creates an agent_turn entry for the given agent.
func NewAgentTurn(a Agent, out TurnOutcome) Entry {
	e := newEntry(EntryAgentTurn)
	e.AgentID = a.ID
	e.AgentName = a.Name
	e.AgentColor = a.Color
	e.PublicMessage = out.PublicMessage
	e.PrivateThought = out.PrivateThought
	if out.Tool != nil {
		e.ToolUsed = out.Tool.Name
		e.ToolResult = out.Tool.Output()
		e.ToolError = out.Tool.IsError
	}
	return e
}

// NewErrorEntry creates an error entry attributed to an agent.
func NewErrorEntry(a Agent, text string) Entry {
	e := newEntry(EntryError)
	e.AgentID = a.ID
	e.AgentName = a.Name
	e.Text = text
	return e
}

// ToolInvocation records a single tool call made during a turn.
type ToolInvocation struct {
	Name    string         `json:"name"`
	Input   map[string]any `json:"input,omitempty"`
	Result  string         `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}

// Output returns the result, or the error message prefixed with "Error:" for
// failed invocations.
func (t ToolInvocation) Output() string {
	if t.IsError {
		return "Error: " + t.Error
	}
	return t.Result
}
