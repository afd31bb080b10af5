package core

import (
	"strings"
	"sync"
	"testing"
)

func sampleAgent() Agent {
	return Agent{ID: "a1", Name: "Alice", Color: "#3b82f6", Model: "gpt-4o", Provider: "openai"}
}

func TestEntryConstructors(t *testing.T) {
	sys := NewSystemMessage("Scenario", "The Island")
	if sys.Type != EntrySystemMessage || sys.Label != "Scenario" || sys.ID == "" || sys.Timestamp.IsZero() {
		t.Fatalf("system message malformed: %+v", sys)
	}

	dir := NewDirectorInstruction("A storm approaches")
	if dir.Type != EntryDirectorInstruction || dir.Text != "A storm approaches" {
		t.Fatalf("director instruction malformed: %+v", dir)
	}

	turn := NewAgentTurn(sampleAgent(), TurnOutcome{
		PublicMessage:  "hello",
		PrivateThought: "be nice",
		Tool:           &ToolInvocation{Name: "web_search", Error: "boom", IsError: true},
	})
	if turn.AgentName != "Alice" || turn.ToolUsed != "web_search" || !turn.ToolError {
		t.Fatalf("agent turn malformed: %+v", turn)
	}
	if turn.ToolResult != "Error: boom" {
		t.Fatalf("expected error marker in tool result, got %q", turn.ToolResult)
	}

	errEntry := NewErrorEntry(sampleAgent(), "provider down")
	if errEntry.Type != EntryError || errEntry.AgentID != "a1" {
		t.Fatalf("error entry malformed: %+v", errEntry)
	}
}

func TestTranscript_AppendIsOrderedAndCopied(t *testing.T) {
	tr := NewTranscript()
	tr.Append(NewSystemMessage("", "one"))
	tr.Append(NewDirectorInstruction("two"))

	entries := tr.Entries()
	if len(entries) != 2 || entries[0].Text != "one" || entries[1].Text != "two" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	entries[0].Text = "changed"
	if tr.Entries()[0].Text != "one" {
		t.Error("entries slice should be copied on read")
	}
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(NewDirectorInstruction("x"))
		}()
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", tr.Len())
	}
}

func TestTranscript_Window(t *testing.T) {
	tr := NewTranscript()
	tr.Append(NewSystemMessage("Scenario", "s"))
	for _, txt := range []string{"d1", "d2", "d3", "d4"} {
		tr.Append(NewDirectorInstruction(txt))
	}

	noSystem := func(e Entry) bool { return e.Type != EntrySystemMessage }

	got := tr.Window(2, noSystem)
	if len(got) != 2 || got[0].Text != "d3" || got[1].Text != "d4" {
		t.Fatalf("unexpected window: %+v", got)
	}

	all := tr.Window(0, noSystem)
	if len(all) != 4 || all[0].Text != "d1" {
		t.Fatalf("unexpected unbounded window: %+v", all)
	}
}

func TestTranscript_StructuredRoundTrip(t *testing.T) {
	tr := NewTranscript()
	tr.Append(NewSystemMessage("Scenario", "The Boardroom"))
	tr.Append(NewDirectorInstruction("Pivot to crypto"))
	tr.Append(NewAgentTurn(sampleAgent(), TurnOutcome{
		PublicMessage:  "We should sell lemonade.",
		PrivateThought: "Low risk",
		Tool:           &ToolInvocation{Name: "web_search", Result: "Title: Lemons"},
	}))
	tr.Append(NewErrorEntry(sampleAgent(), "timeout"))

	data, err := tr.Export(FormatJSON)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	parsed, err := ParseStructured(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	orig := tr.Entries()
	if len(parsed) != len(orig) {
		t.Fatalf("expected %d entries, got %d", len(orig), len(parsed))
	}
	for i := range orig {
		if !orig[i].Timestamp.Equal(parsed[i].Timestamp) {
			t.Fatalf("timestamp mismatch at %d", i)
		}
		a, b := orig[i], parsed[i]
		a.Timestamp = b.Timestamp
		if a != b {
			t.Fatalf("entry %d mismatch:\n%+v\n%+v", i, orig[i], parsed[i])
		}
	}
}

func TestTranscript_ReadableExport(t *testing.T) {
	tr := NewTranscript()
	tr.Append(NewDirectorInstruction("Find water"))
	tr.Append(NewAgentTurn(sampleAgent(), TurnOutcome{
		PublicMessage:  "There is a spring to the north.",
		PrivateThought: "I saw it earlier",
		Tool:           &ToolInvocation{Name: "web_search", Result: "Title: Springs"},
	}))

	data, err := tr.Export(FormatText)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"[Director]: Find water",
		"[Alice]: There is a spring to the north.",
		"\n    (thought) I saw it earlier",
		"\n    (tool: web_search) Title: Springs",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("readable export missing %q:\n%s", want, text)
		}
	}
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{"": FormatJSON, "JSON": FormatJSON, "txt": FormatText, "text": FormatText} {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseExportFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseExportFormat("xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
