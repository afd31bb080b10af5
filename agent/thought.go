package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Action is the optional single tool request of a think phase.
type Action struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Thought is the private outcome of a think phase.
type Thought struct {
	Thought string  `json:"thought"`
	Action  *Action `json:"action"`

	// Structured is false when the reply could not be parsed and the raw
	// text was taken as the thought.
	Structured bool `json:"-"`
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseThought interprets a think-phase reply. It never fails: the reply is
// tried as a JSON object, then as a fenced JSON block, then as the first
// balanced {...} object embedded in prose. If none parses, the trimmed raw
// text becomes the thought and no action is taken.
func ParseThought(text string) Thought {
	raw := strings.TrimSpace(text)

	candidates := []string{raw}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj, ok := firstObject(raw); ok {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		if t, ok := decodeThought(c); ok {
			return t
		}
	}
	return Thought{Thought: raw}
}

// thoughtEnvelope defers decoding of action; a non-object action such as
// "none" means no action and leaves thought intact.
type thoughtEnvelope struct {
	Thought string          `json:"thought"`
	Action  json.RawMessage `json:"action"`
}

type actionEnvelope struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

func decodeThought(s string) (Thought, bool) {
	if !strings.HasPrefix(s, "{") {
		return Thought{}, false
	}
	var env thoughtEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Thought{}, false
	}
	t := Thought{Thought: strings.TrimSpace(env.Thought), Action: decodeAction(env.Action)}
	if t.Thought == "" && t.Action == nil {
		return Thought{}, false
	}
	t.Structured = true
	return t, true
}

// decodeAction returns nil for anything but an object naming a tool.
func decodeAction(raw json.RawMessage) *Action {
	if !isObject(raw) {
		return nil
	}
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	name := strings.TrimSpace(env.ToolName)
	if name == "" {
		return nil
	}
	input := map[string]any{}
	if isObject(env.ToolInput) {
		_ = json.Unmarshal(env.ToolInput, &input)
	}
	return &Action{ToolName: name, ToolInput: input}
}

func isObject(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "{")
}

// firstObject returns the first brace-balanced object in s, ignoring braces
// inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
