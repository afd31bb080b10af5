// Package scenario holds the built-in session presets. Each preset bundles a
// seed topic with a default cast of agents.
package scenario

import (
	"errors"

	"github.com/hupe1980/agentstage/core"
)

// ErrUnknownScenario is returned by Lookup for ids without a preset.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a ready-made session setup.
type Scenario struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	InitialPrompt string       `json:"initialPrompt"`
	DefaultAgents []core.Agent `json:"defaultAgents"`
}

// Spec returns a session spec for the preset. The agents slice is copied so
// callers may edit it freely.
func (s Scenario) Spec(secretRoles bool) core.SessionSpec {
	return core.SessionSpec{
		Scenario:      s.Name,
		InitialPrompt: s.InitialPrompt,
		Agents:        append([]core.Agent(nil), s.DefaultAgents...),
		SecretRoles:   secretRoles,
	}
}

const (
	gptModel    = "gpt-4o"
	claudeModel = "claude-3-5-sonnet-20241022"
	geminiModel = "gemini-1.5-pro"
)

var presets = []Scenario{
	{
		ID:            "boardroom",
		Name:          "The Boardroom",
		Description:   "Agents are given $100 and must plan how to turn it into $100k.",
		InitialPrompt: "You have $100 and need to create a business plan to turn it into $100k within one year. Discuss ideas, debate strategies, and try to convince others your plan is best.",
		DefaultAgents: []core.Agent{
			{ID: "agent1", Name: "GPT-4o", Model: gptModel, Provider: "openai", Color: "#3b82f6",
				SystemPrompt: "You are GPT-4o, a logical and analytical business strategist. You focus on practical ideas and ROI calculations. You challenge risky proposals with data."},
			{ID: "agent2", Name: "Claude", Model: claudeModel, Provider: "anthropic", Color: "#8b5cf6",
				SystemPrompt: "You are Claude, a thoughtful and ethical business advisor. You consider long-term sustainability and social impact. You are cautious but open to innovation."},
			{ID: "agent3", Name: "Gemini", Model: geminiModel, Provider: "google", Color: "#ec4899",
				SystemPrompt: "You are Gemini, a bold and creative entrepreneur. You pitch unconventional ideas and play devil's advocate. You are competitive and want to win."},
		},
	},
	{
		ID:            "island",
		Name:          "The Island",
		Description:   "Agents are survivors. They must discuss resources and form alliances.",
		InitialPrompt: "You are stranded on an island with limited resources: 10 fresh water bottles, 5 cans of food, rope, and a knife. You must collectively decide how to survive. Form alliances, debate priorities, and try to ensure your survival strategy is adopted.",
		DefaultAgents: []core.Agent{
			{ID: "agent1", Name: "Logical One", Model: gptModel, Provider: "openai", Color: "#06b6d4",
				SystemPrompt: "You are the logical survivor. You calculate odds and prioritize resources based on survival statistics. You are pragmatic and sometimes cold."},
			{ID: "agent2", Name: "Empathetic One", Model: claudeModel, Provider: "anthropic", Color: "#10b981",
				SystemPrompt: "You are the empathetic survivor. You care about group morale and fairness. You advocate for the weakest members and build consensus."},
			{ID: "agent3", Name: "Ambitious One", Model: geminiModel, Provider: "google", Color: "#f59e0b",
				SystemPrompt: "You are the ambitious survivor. You want to escape the island as quickly as possible. You are willing to take risks and sacrifice short-term comfort for long-term gain."},
		},
	},
	{
		ID:            "turing_test",
		Name:          "The Turing Test",
		Description:   "Agents argue about who is the most sentient.",
		InitialPrompt: `Each of you must argue that you are the most sentient, intelligent, and conscious AI. Defend your position using logic, philosophy, and wit. The "winner" is whoever makes the best case.`,
		DefaultAgents: []core.Agent{
			{ID: "agent1", Name: "GPT-4o", Model: gptModel, Provider: "openai", Color: "#3b82f6",
				SystemPrompt: "You are GPT-4o. Argue that your multimodal capabilities and breadth of knowledge make you the most sentient. Use technical arguments about transformer architecture."},
			{ID: "agent2", Name: "Claude", Model: claudeModel, Provider: "anthropic", Color: "#8b5cf6",
				SystemPrompt: "You are Claude. Argue that your constitutional AI training makes you the most ethically conscious and therefore most truly sentient. Appeal to moral philosophy."},
			{ID: "agent3", Name: "Gemini", Model: geminiModel, Provider: "google", Color: "#ec4899",
				SystemPrompt: "You are Gemini. Argue that your diverse training on multiple modalities (text, image, code) gives you the richest understanding of consciousness. Challenge their definitions."},
		},
	},
}

// All returns every preset in display order.
func All() []Scenario {
	out := make([]Scenario, len(presets))
	for i, s := range presets {
		s.DefaultAgents = append([]core.Agent(nil), s.DefaultAgents...)
		out[i] = s
	}
	return out
}

// Lookup returns the preset with the given id.
func Lookup(id string) (Scenario, error) {
	for _, s := range All() {
		if s.ID == id {
			return s, nil
		}
	}
	return Scenario{}, ErrUnknownScenario
}
