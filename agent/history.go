package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentstage/core"
)

// DefaultHistoryWindow is the number of recent entries shown to a speaker.
const DefaultHistoryWindow = 15

// IsHistoryEntry reports whether an entry is conversation context. Director
// instructions and agent turns are; system banners and error records are not.
func IsHistoryEntry(e core.Entry) bool {
	return e.Type == core.EntryDirectorInstruction || e.Type == core.EntryAgentTurn
}

// History returns the most recent k conversation entries, oldest first.
func History(t *core.Transcript, k int) []core.Entry {
	if k <= 0 {
		k = DefaultHistoryWindow
	}
	return t.Window(k, IsHistoryEntry)
}

// FormatHistory renders entries as one line block per speaker.
func FormatHistory(entries []core.Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case core.EntryAgentTurn:
			lines = append(lines, fmt.Sprintf("%s: %s", e.AgentName, e.PublicMessage))
		case core.EntryDirectorInstruction:
			lines = append(lines, "[DIRECTOR INSTRUCTION]: "+e.Text)
		}
	}
	return strings.Join(lines, "\n\n")
}

// conversationText bundles the history into one user message so providers
// that require alternating roles accept it regardless of how many speakers
// preceded.
func conversationText(entries []core.Entry) string {
	if len(entries) == 0 {
		return "The conversation has not started yet. You speak first."
	}
	return "Here is the conversation so far:\n\n" + FormatHistory(entries) + "\n\nNow it's your turn to respond."
}
