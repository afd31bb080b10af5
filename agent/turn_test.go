package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/internal/testutil"
	"github.com/hupe1980/agentstage/model"
	"github.com/hupe1980/agentstage/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	mu  sync.Mutex
	got []core.Status
}

func (s *statusRecorder) record(_ string, st core.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, st)
}

func (s *statusRecorder) statuses() []core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Status(nil), s.got...)
}

func sumExecutor() *tool.Executor {
	sum := tool.NewFunctionTool("sum", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
	fail := tool.NewFunctionTool("flaky", "Always fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("service unavailable")
	})
	return tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Tools = []tool.Tool{sum, fail} })
}

func newTurnFixture(m model.Model) (*core.Session, core.Agent, *TurnRunner, *statusRecorder) {
	sess := testutil.NewSessionBuilder("s1").Topic("Count things.").
		Agent("a1", "Ada", "gpt-4o").
		Agent("a2", "Bo", "gpt-4o").
		Build()
	ada := sess.Agents()[0]
	rec := &statusRecorder{}
	resolver := testutil.NewStaticResolver().Set(ada.ID, m)
	runner := NewTurnRunner(resolver, sumExecutor(), func(o *TurnOptions) { o.OnStatus = rec.record })
	return sess, ada, runner, rec
}

func TestTurnRunner_ThinkActSpeak(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").
		AddText(`{"thought":"I should add first","action":{"tool_name":"sum","tool_input":{"a":1,"b":2}}}`).
		AddText("Ada: Three, as promised.")
	sess, ada, runner, rec := newTurnFixture(m)
	sess.Transcript().Append(core.NewDirectorInstruction("Add one and two."))

	e := runner.Run(context.Background(), sess, ada)

	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.Equal(t, "a1", e.AgentID)
	assert.Equal(t, "Three, as promised.", e.PublicMessage)
	assert.Equal(t, "I should add first", e.PrivateThought)
	assert.Equal(t, "sum", e.ToolUsed)
	assert.Equal(t, "3", e.ToolResult)
	assert.False(t, e.ToolError)
	assert.Equal(t, []core.Status{core.StatusThinking, "using sum", core.StatusSpeaking, core.StatusIdle}, rec.statuses())

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Instructions, "Topic: Count things.")
	assert.Contains(t, reqs[0].Contents[0].Text(), "[DIRECTOR INSTRUCTION]: Add one and two.")
	assert.Contains(t, reqs[0].Contents[0].Text(), "- sum: Add two numbers")
	assert.Empty(t, reqs[0].Tools)
	assert.Contains(t, reqs[1].Contents[0].Text(), "Result of sum: 3")
}

func TestTurnRunner_UnstructuredThoughtDegrades(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").
		AddText("Honestly I just want to chat.").
		AddText("Hello everyone!")
	sess, ada, runner, rec := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)

	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.Equal(t, "Hello everyone!", e.PublicMessage)
	assert.Equal(t, "Honestly I just want to chat.", e.PrivateThought)
	assert.Empty(t, e.ToolUsed)
	assert.Equal(t, []core.Status{core.StatusThinking, core.StatusSpeaking, core.StatusIdle}, rec.statuses())
}

func TestTurnRunner_ToolFailureFeedsSpeak(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").
		AddText(`{"thought":"check","action":{"tool_name":"flaky","tool_input":{}}}`).
		AddText("The service is down, so I will guess.")
	sess, ada, runner, _ := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)

	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.Equal(t, "flaky", e.ToolUsed)
	assert.True(t, e.ToolError)
	assert.Equal(t, "Error: service unavailable", e.ToolResult)
	assert.Contains(t, m.Requests()[1].Contents[0].Text(), "Error: service unavailable")
}

func TestTurnRunner_UnknownToolIsNotFatal(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").
		AddText(`{"thought":"teleport","action":{"tool_name":"teleport","tool_input":{}}}`).
		AddText("That did not work.")
	sess, ada, runner, _ := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)
	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.True(t, e.ToolError)
}

func TestTurnRunner_ProviderFailureBecomesErrorEntry(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").AddError(errors.New("401 unauthorized"))
	sess, ada, runner, rec := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)

	assert.Equal(t, core.EntryError, e.Type)
	assert.Equal(t, "Ada", e.AgentName)
	assert.Contains(t, e.Text, "Ada failed to respond")
	assert.Contains(t, e.Text, "401 unauthorized")
	assert.Equal(t, []core.Status{core.StatusThinking, core.StatusError, core.StatusIdle}, rec.statuses())
}

func TestTurnRunner_EmptySpeakIsError(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").AddText(`{"thought":"x","action":null}`).AddText("Ada:")
	sess, ada, runner, _ := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)
	assert.Equal(t, core.EntryError, e.Type)
	assert.Contains(t, e.Text, ErrEmptyReply.Error())
}

func TestTurnRunner_UnresolvableModel(t *testing.T) {
	sess := testutil.NewSessionBuilder("s1").Agent("a1", "Ada", "mystery").Build()
	runner := NewTurnRunner(testutil.NewStaticResolver(), nil)

	e := runner.Run(context.Background(), sess, sess.Agents()[0])
	assert.Equal(t, core.EntryError, e.Type)
	assert.Contains(t, e.Text, "backend not configured")
}

func TestTurnRunner_AgenticPath(t *testing.T) {
	m := model.NewAgenticMockModel("claude-3-5-sonnet-20241022").
		AddToolCall("toolu_1", "sum", `{"a":1,"b":1}`).
		AddText("**Ada**: It is two.")
	sess, ada, runner, rec := newTurnFixture(m)

	e := runner.Run(context.Background(), sess, ada)

	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.Equal(t, "It is two.", e.PublicMessage)
	assert.Empty(t, e.PrivateThought)
	assert.Equal(t, "sum", e.ToolUsed)
	assert.Equal(t, "2", e.ToolResult)
	assert.Equal(t, []core.Status{core.StatusThinking, "using sum", core.StatusSpeaking, core.StatusIdle}, rec.statuses())

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 2)
	assert.Contains(t, reqs[0].Contents[0].Text(), "You speak first")
}

func TestTurnRunner_AgenticCeilingYieldsSentinel(t *testing.T) {
	m := model.NewAgenticMockModel("claude").SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c", Name: "sum", Arguments: `{"a":1,"b":1}`}},
		}}}, nil
	})
	sess := testutil.NewSessionBuilder("s1").Agent("a1", "Ada", "claude").Build()
	ada := sess.Agents()[0]
	runner := NewTurnRunner(testutil.NewStaticResolver().Set(ada.ID, m), sumExecutor(), func(o *TurnOptions) {
		o.MaxToolIterations = 2
	})

	e := runner.Run(context.Background(), sess, ada)
	assert.Equal(t, core.EntryAgentTurn, e.Type)
	assert.Equal(t, MaxIterationsText, e.PublicMessage)
	assert.Equal(t, "sum", e.ToolUsed)
}

func TestTurnRunner_RecoversPanics(t *testing.T) {
	m := model.NewMockModel("gpt-4o", "openai").SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{}, nil
	})
	sess := testutil.NewSessionBuilder("s1").Agent("a1", "Ada", "gpt-4o").Build()
	ada := sess.Agents()[0]
	runner := NewTurnRunner(testutil.NewStaticResolver().Set(ada.ID, m), nil, func(o *TurnOptions) {
		o.OnStatus = func(_ string, st core.Status) {
			if st == core.StatusSpeaking {
				panic("observer exploded")
			}
		}
	})

	e := runner.Run(context.Background(), sess, ada)
	assert.Equal(t, core.EntryError, e.Type)
	assert.Contains(t, e.Text, "observer exploded")
}
