package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	msgs []string
	args [][]any
}

func (r *recordingLogger) record(msg string, args []any) {
	r.msgs = append(r.msgs, msg)
	r.args = append(r.args, args)
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.record(msg, args) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record(msg, args) }

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestNewLogger_JSONWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "engine"})
	l = WithSession(l, "s-1")
	l.Info("session started", "agents", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "session started", rec["msg"])
	assert.Equal(t, "engine", rec["component"])
	assert.Equal(t, "s-1", rec["session_id"])
	assert.EqualValues(t, 3, rec["agents"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWith_WrapsForeignLoggers(t *testing.T) {
	rec := &recordingLogger{}
	l := WithAgent(WithSession(rec, "s-1"), "a1", "Alice")
	l.Warn("turn failed", "error", "boom")

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, []any{"session_id", "s-1", "agent_id", "a1", "agent", "Alice", "error", "boom"}, rec.args[0])
}

func TestWith_NilAndNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, With(nil, "k", "v"))
	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "k", "v"))
}

func TestLogHelpers(t *testing.T) {
	rec := &recordingLogger{}
	LogToolCall(rec, "web_search", time.Millisecond, nil)
	LogToolCall(rec, "web_search", time.Millisecond, errors.New("boom"))
	LogProviderCall(rec, "gpt-4o", time.Second, errors.New("down"))

	assert.Equal(t, []string{"tool execution completed", "tool execution failed", "provider call failed"}, rec.msgs)
}
