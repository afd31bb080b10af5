package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentstage/broadcast"
	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/internal/testutil"
	"github.com/hupe1980/agentstage/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chattyModel() *model.MockModel {
	return model.NewMockModel("gpt-4o", "openai").SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{Content: core.NewTextContent(core.RoleAssistant, "hello"), FinishReason: model.FinishStop}, nil
	})
}

func newTestEngine(t *testing.T, resolver model.Resolver, optFns ...func(o *Options)) *Engine {
	t.Helper()
	cfg := DefaultConfig
	cfg.PacingInterval = 0
	eng := New(append([]func(o *Options){func(o *Options) {
		o.Config = cfg
		o.Resolver = resolver
	}}, optFns...)...)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func threeAgents() core.SessionSpec {
	return testutil.NewSessionBuilder("ignored").
		Scenario("Boardroom").
		Topic("Should we ship on Friday?").
		Agent("a1", "Ada", "gpt-4o").
		Agent("a2", "Bo", "gpt-4o").
		Agent("a3", "Cy", "gpt-4o").
		Spec()
}

func agentEntries(entries []core.Entry) []core.Entry {
	var out []core.Entry
	for _, e := range entries {
		if e.Type == core.EntryAgentTurn || e.Type == core.EntryError {
			out = append(out, e)
		}
	}
	return out
}

// runTurns starts the session, lets at least n turns complete and stops it.
func runTurns(t *testing.T, eng *Engine, id string, n int) []core.Entry {
	t.Helper()
	require.NoError(t, eng.Start(id))
	require.Eventually(t, func() bool {
		entries, err := eng.Transcript(id)
		return err == nil && len(agentEntries(entries)) >= n
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, eng.Stop(id))
	require.NoError(t, eng.Wait(context.Background(), id))
	entries, err := eng.Transcript(id)
	require.NoError(t, err)
	return entries
}

func TestEngine_CreateSession(t *testing.T) {
	eng := newTestEngine(t, testutil.NewStaticResolver())

	sess, err := eng.CreateSession(core.SessionSpec{
		Scenario: "Island",
		Agents:   []core.Agent{{Name: "Ada", Model: "gpt-4o"}, {Name: "Bo", Model: "gpt-4o"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.ID, "session_"))
	assert.Equal(t, "agent1", sess.Agents()[0].ID)
	assert.Equal(t, "agent2", sess.Agents()[1].ID)
	assert.False(t, sess.IsRunning())

	snaps := eng.Sessions()
	require.Len(t, snaps, 1)
	assert.Equal(t, sess.ID, snaps[0].ID)
}

func TestEngine_CreateSessionInvalid(t *testing.T) {
	eng := newTestEngine(t, testutil.NewStaticResolver())

	_, err := eng.CreateSession(core.SessionSpec{Scenario: "Empty"})
	require.ErrorIs(t, err, ErrInvalidSession)

	_, err = eng.CreateSession(core.SessionSpec{Agents: []core.Agent{{Name: "Ada"}}})
	require.ErrorIs(t, err, ErrInvalidSession)
	assert.Empty(t, eng.Sessions())
}

func TestEngine_RoundRobin(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	entries := runTurns(t, eng, sess.ID, 7)

	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, core.EntrySystemMessage, entries[0].Type)
	assert.Equal(t, "Scenario", entries[0].Label)
	assert.Equal(t, "Boardroom", entries[0].Text)
	assert.Equal(t, "Topic", entries[1].Label)

	turns := agentEntries(entries)
	want := []string{"a1", "a2", "a3"}
	for i, e := range turns {
		assert.Equal(t, want[i%3], e.AgentID, "turn %d", i)
		assert.Equal(t, core.EntryAgentTurn, e.Type)
		assert.Equal(t, "hello", e.PublicMessage)
	}
	assert.Equal(t, len(turns), sess.TurnIndex())

	for _, st := range sess.Statuses() {
		assert.True(t, st.IsIdle())
	}
}

func TestEngine_DirectorInstructionsInterleave(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	require.NoError(t, eng.InjectDirectorPrompt(sess.ID, "A storm is coming."))
	require.NoError(t, eng.InjectDirectorPrompt(sess.ID, "The power is out."))

	entries := runTurns(t, eng, sess.ID, 3)
	require.GreaterOrEqual(t, len(entries), 7)

	var kinds []string
	for _, e := range entries[2:7] {
		switch e.Type {
		case core.EntryDirectorInstruction:
			kinds = append(kinds, "director:"+e.Text)
		default:
			kinds = append(kinds, e.AgentID)
		}
	}
	assert.Equal(t, []string{"director:A storm is coming.", "a1", "director:The power is out.", "a2", "a3"}, kinds)
	assert.Zero(t, sess.PendingDirectives())
}

func TestEngine_DirectorInstructionReachesNextSpeaker(t *testing.T) {
	m := chattyModel()
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = m
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)
	require.NoError(t, eng.InjectDirectorPrompt(sess.ID, "Everyone whisper."))

	runTurns(t, eng, sess.ID, 1)

	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Contents[0].Text(), "[DIRECTOR INSTRUCTION]: Everyone whisper.")
}

func TestEngine_EmptyInstruction(t *testing.T) {
	eng := newTestEngine(t, testutil.NewStaticResolver())
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	require.ErrorIs(t, eng.InjectDirectorPrompt(sess.ID, "   "), ErrEmptyInstruction)
	assert.Zero(t, sess.PendingDirectives())
}

func TestEngine_FailedTurnStillAdvances(t *testing.T) {
	resolver := testutil.NewStaticResolver().
		Set("a1", chattyModel()).
		Set("a3", chattyModel())
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	turns := agentEntries(runTurns(t, eng, sess.ID, 3))

	assert.Equal(t, core.EntryAgentTurn, turns[0].Type)
	assert.Equal(t, core.EntryError, turns[1].Type)
	assert.Equal(t, "a2", turns[1].AgentID)
	assert.Contains(t, turns[1].Text, "Bo failed to respond")
	assert.Equal(t, core.EntryAgentTurn, turns[2].Type)
	assert.Equal(t, "a3", turns[2].AgentID)
	assert.True(t, sess.Statuses()["a2"].IsIdle())
}

func TestEngine_StopLetsInFlightTurnFinish(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m := model.NewMockModel("gpt-4o", "openai").SetHandler(func(model.Request) (model.Response, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return model.Response{Content: core.NewTextContent(core.RoleAssistant, "done"), FinishReason: model.FinishStop}, nil
	})
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = m
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	require.NoError(t, eng.Start(sess.ID))
	<-entered
	require.NoError(t, eng.Stop(sess.ID))
	assert.False(t, sess.IsRunning())
	close(release)
	require.NoError(t, eng.Wait(context.Background(), sess.ID))

	entries, err := eng.Transcript(sess.ID)
	require.NoError(t, err)
	turns := agentEntries(entries)
	require.Len(t, turns, 1)
	assert.Equal(t, "a1", turns[0].AgentID)
	assert.Equal(t, "done", turns[0].PublicMessage)
	assert.Equal(t, 1, sess.TurnIndex())
}

func TestEngine_RestartContinuesRotation(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	first := len(agentEntries(runTurns(t, eng, sess.ID, 2)))
	entries := runTurns(t, eng, sess.ID, first+2)

	banners := 0
	for _, e := range entries {
		if e.Type == core.EntrySystemMessage {
			banners++
		}
	}
	assert.Equal(t, 2, banners)

	turns := agentEntries(entries)
	want := []string{"a1", "a2", "a3"}
	for i, e := range turns {
		assert.Equal(t, want[i%3], e.AgentID, "turn %d", i)
	}
}

func TestEngine_StartStopAreIdempotent(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	require.NoError(t, eng.Stop(sess.ID))
	require.NoError(t, eng.Start(sess.ID))
	require.NoError(t, eng.Start(sess.ID))
	require.NoError(t, eng.Stop(sess.ID))
	require.NoError(t, eng.Stop(sess.ID))
	require.NoError(t, eng.Wait(context.Background(), sess.ID))
	assert.False(t, sess.IsRunning())
}

func TestEngine_SecretRolesAssignedOnce(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	var picks atomic.Int32
	eng := newTestEngine(t, resolver, func(o *Options) {
		o.Pick = func(n int) int {
			picks.Add(1)
			return 1
		}
	})
	spec := threeAgents()
	spec.SecretRoles = true
	sess, err := eng.CreateSession(spec)
	require.NoError(t, err)

	runTurns(t, eng, sess.ID, 1)
	runTurns(t, eng, sess.ID, 2)

	assert.Equal(t, int32(1), picks.Load())
	agents := sess.Agents()
	assert.Equal(t, AlertInstruction, agents[0].SecretInstruction)
	assert.Equal(t, SaboteurInstruction, agents[1].SecretInstruction)
	assert.Equal(t, AlertInstruction, agents[2].SecretInstruction)
}

func TestEngine_NoSecretRolesByDefault(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	runTurns(t, eng, sess.ID, 1)

	for _, a := range sess.Agents() {
		assert.Empty(t, a.SecretInstruction)
	}
}

func TestEngine_UnknownSession(t *testing.T) {
	eng := newTestEngine(t, testutil.NewStaticResolver())

	assert.ErrorIs(t, eng.Start("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, eng.Stop("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, eng.InjectDirectorPrompt("nope", "hi"), ErrSessionNotFound)
	_, err := eng.Transcript("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = eng.Export("nope", core.FormatJSON)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = eng.Snapshot("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = eng.Subscribe("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, eng.Delete(context.Background(), "nope"), ErrSessionNotFound)
}

func TestEngine_ExportRoundTrip(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)
	require.NoError(t, eng.InjectDirectorPrompt(sess.ID, "Vote now."))
	entries := runTurns(t, eng, sess.ID, 2)

	data, err := eng.Export(sess.ID, core.FormatJSON)
	require.NoError(t, err)
	parsed, err := core.ParseStructured(data)
	require.NoError(t, err)
	assert.Equal(t, entries, parsed)

	text, err := eng.Export(sess.ID, core.FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Vote now.")
	assert.Contains(t, string(text), "Ada")
}

func TestEngine_SubscribeReceivesPushes(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver, func(o *Options) {
		o.Config.PacingInterval = 20 * time.Millisecond
		o.Config.SubscriberBuffer = 1024
	})
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)

	sub, err := eng.Subscribe(sess.ID)
	require.NoError(t, err)
	defer sub.Close()

	runTurns(t, eng, sess.ID, 1)

	var got []broadcast.Message
drain:
	for {
		select {
		case msg := <-sub.C:
			got = append(got, msg)
		default:
			break drain
		}
	}
	require.NotEmpty(t, got)

	assert.Equal(t, broadcast.TypeMessage, got[0].Type)
	var sawRunning, sawPaused, sawThinking bool
	for _, msg := range got {
		switch data := msg.Data.(type) {
		case broadcast.SessionState:
			sawRunning = sawRunning || data.Status == broadcast.SessionRunning
			sawPaused = sawPaused || data.Status == broadcast.SessionPaused
		case broadcast.AgentStatus:
			sawThinking = sawThinking || data.Status == core.StatusThinking
		}
	}
	assert.True(t, sawRunning)
	assert.True(t, sawPaused)
	assert.True(t, sawThinking)
}

func TestEngine_DeleteAndClose(t *testing.T) {
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = chattyModel()
	eng := newTestEngine(t, resolver)
	sess, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)
	require.NoError(t, eng.Start(sess.ID))

	require.NoError(t, eng.Delete(context.Background(), sess.ID))
	_, err = eng.Snapshot(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	other, err := eng.CreateSession(threeAgents())
	require.NoError(t, err)
	require.NoError(t, eng.Start(other.ID))
	require.NoError(t, eng.Close())
	assert.False(t, other.IsRunning())
	assert.ErrorIs(t, eng.Start(other.ID), ErrClosed)
	_, err = eng.CreateSession(threeAgents())
	assert.ErrorIs(t, err, ErrClosed)
}
