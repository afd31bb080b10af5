package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ExportFormat names a transcript serialization.
type ExportFormat string

const (
	// FormatJSON is the lossless structured form; ParseStructured reads it back.
	FormatJSON ExportFormat = "json"
	// FormatText is a human readable rendering.
	FormatText ExportFormat = "txt"
)

// ParseExportFormat maps user input ("json", "txt", "text") to an ExportFormat.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Transcript is the append-only ordered record of a session. It is safe for
// concurrent use; readers always receive copies.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewTranscript returns a transcript seeded with the given entries.
func NewTranscript(entries ...Entry) *Transcript {
	return &Transcript{entries: append([]Entry(nil), entries...)}
}

// Append adds an entry at the end. Existing entries are never modified.
func (t *Transcript) Append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a defensive copy of all entries in insertion order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Window returns the last k entries accepted by keep, oldest first. A k of
// zero or less returns every accepted entry.
func (t *Transcript) Window(k int, keep func(Entry) bool) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var rev []Entry
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if keep != nil && !keep(e) {
			continue
		}
		rev = append(rev, e)
		if k > 0 && len(rev) == k {
			break
		}
	}
	out := make([]Entry, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

// Export serializes the transcript in the requested format.
func (t *Transcript) Export(format ExportFormat) ([]byte, error) {
	return ExportEntries(t.Entries(), format)
}

// ExportEntries serializes entries in the requested format.
func ExportEntries(entries []Entry, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []Entry{}
		}
		return json.MarshalIndent(entries, "", "  ")
	case FormatText:
		return []byte(RenderText(entries)), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ParseStructured reads the json export form back into entries.
func ParseStructured(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return entries, nil
}

// RenderText produces the readable transcript. Private thoughts and tool
// usage are shown indented under the agent line that produced them.
func RenderText(entries []Entry) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, renderEntry(e))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(e Entry) string {
	switch e.Type {
	case EntrySystemMessage:
		if e.Label != "" {
			return fmt.Sprintf("[System] %s: %s", e.Label, e.Text)
		}
		return "[System] " + e.Text
	case EntryDirectorInstruction:
		return "[Director]: " + e.Text
	case EntryError:
		return fmt.Sprintf("[Error] %s: %s", e.AgentName, e.Text)
	case EntryAgentTurn:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]: %s", e.AgentName, e.PublicMessage)
		if e.PrivateThought != "" {
			fmt.Fprintf(&b, "\n    (thought) %s", indentContinuation(e.PrivateThought))
		}
		if e.ToolUsed != "" {
			fmt.Fprintf(&b, "\n    (tool: %s) %s", e.ToolUsed, indentContinuation(e.ToolResult))
		}
		return b.String()
	default:
		return e.Text
	}
}

func indentContinuation(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}
