package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Agent is a persona taking part in a session. Model and Provider are free
// form strings resolved by the model registry at turn time.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Model        string `json:"model"`
	Provider     string `json:"provider,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// SecretInstruction is a hidden directive assigned once per session. It
	// is never serialized to observers.
	SecretInstruction string `json:"-"`
}

// Validate checks the minimal fields required to take a turn.
func (a Agent) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("agent id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("agent %s: name is required", a.ID)
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("agent %s: model is required", a.ID)
	}
	return nil
}

// Status is the live activity indicator of an agent. The zero value is idle.
type Status string

const (
	StatusIdle     Status = ""
	StatusThinking Status = "thinking"
	StatusActing   Status = "acting"
	StatusSpeaking Status = "speaking"
	StatusError    Status = "error"
)

// ActingStatus returns the acting status annotated with the tool in use.
func ActingStatus(toolName string) Status {
	if toolName == "" {
		return StatusActing
	}
	return Status("using " + toolName)
}

// IsIdle reports whether the status denotes no activity.
func (s Status) IsIdle() bool { return s == StatusIdle }

// MarshalJSON encodes the idle status as null.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.IsIdle() {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts null as idle.
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusIdle
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Status(v)
	return nil
}
