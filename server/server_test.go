package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/engine"
	"github.com/hupe1980/agentstage/internal/testutil"
	"github.com/hupe1980/agentstage/model"
)

func newTestServer(t *testing.T) (*engine.Engine, http.Handler) {
	t.Helper()
	resolver := testutil.NewStaticResolver()
	resolver.Fallback = model.NewMockModel("gpt-4o", "openai").SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{Content: core.NewTextContent(core.RoleAssistant, "hello"), FinishReason: model.FinishStop}, nil
	})
	eng := engine.New(func(o *engine.Options) {
		o.Resolver = resolver
		o.Config.PacingInterval = 10 * time.Millisecond
	})
	t.Cleanup(func() { _ = eng.Close() })
	return eng, New(eng).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/session/create", `{
		"scenario": "Boardroom",
		"initialPrompt": "Plan a launch.",
		"agents": [
			{"id": "a1", "name": "Ada", "model": "gpt-4o"},
			{"id": "a2", "name": "Bo", "model": "gpt-4o"}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp createSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Session created", resp.Message)
	require.True(t, strings.HasPrefix(resp.SessionID, "session_"))
	return resp.SessionID
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodOptions, "/api/session/create", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestScenarios(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Scenarios []struct {
			ID string `json:"id"`
		} `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Scenarios, 3)
	assert.Equal(t, "boardroom", resp.Scenarios[0].ID)
}

func TestCreateSession_Validation(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/session/create", `{"scenario":"x","agents":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/session/create", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/session/create", `{"scenarioId":"mars"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestBodyLimit(t *testing.T) {
	eng, _ := newTestServer(t)
	h := New(eng, func(o *Options) { o.MaxBodyBytes = 64 }).Handler()

	big := `{"scenario":"` + strings.Repeat("x", 128) + `","agents":[{"name":"Ada","model":"gpt-4o"}]}`
	w := do(t, h, http.MethodPost, "/api/session/create", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "Request body too large")

	id := createSession(t, New(eng).Handler())
	w = do(t, h, http.MethodPost, "/api/session/"+id+"/director", `{"prompt":"`+strings.Repeat("y", 128)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, http.MethodPost, "/api/session/"+id+"/director", `{"prompt":"Short."}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSession_FromPreset(t *testing.T) {
	eng, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/session/create", `{"scenarioId":"island","secretRoles":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp createSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	snap, err := eng.Snapshot(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "The Island", snap.Scenario)
	assert.Len(t, snap.Agents, 3)
}

func TestSessionLifecycle(t *testing.T) {
	eng, h := newTestServer(t)
	id := createSession(t, h)

	w := do(t, h, http.MethodPost, "/api/session/"+id+"/godmode", `{"prompt":"A storm hits."}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"God mode prompt injected"}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/session/"+id+"/director", `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/session/"+id+"/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Session started"}`, w.Body.String())

	require.Eventually(t, func() bool {
		entries, _ := eng.Transcript(id)
		for _, e := range entries {
			if e.Type == core.EntryAgentTurn {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	w = do(t, h, http.MethodPost, "/api/session/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Session stopped"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/session/"+id+"/transcript", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tr transcriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	require.GreaterOrEqual(t, len(tr.Transcript), 4)
	assert.Equal(t, core.EntrySystemMessage, tr.Transcript[0].Type)
	assert.Equal(t, core.EntryDirectorInstruction, tr.Transcript[2].Type)
	assert.Equal(t, "A storm hits.", tr.Transcript[2].Text)

	w = do(t, h, http.MethodGet, "/api/session/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap core.SessionSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.ID)
	assert.False(t, snap.Running)

	w = do(t, h, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)
}

func TestExport(t *testing.T) {
	_, h := newTestServer(t)
	id := createSession(t, h)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/session/"+id+"/godmode", `{"prompt":"Go."}`).Code)

	w := do(t, h, http.MethodGet, "/api/session/"+id+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	entries, err := core.ParseStructured(w.Body.Bytes())
	require.NoError(t, err)
	assert.Empty(t, entries)

	w = do(t, h, http.MethodGet, "/api/session/"+id+"/export?format=txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Header().Get("Content-Disposition"), id+".txt")

	w = do(t, h, http.MethodGet, "/api/session/"+id+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSession(t *testing.T) {
	_, h := newTestServer(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/session/nope/start", ""},
		{http.MethodPost, "/api/session/nope/stop", ""},
		{http.MethodPost, "/api/session/nope/godmode", `{"prompt":"hi"}`},
		{http.MethodGet, "/api/session/nope/transcript", ""},
		{http.MethodGet, "/api/session/nope/export", ""},
		{http.MethodGet, "/api/session/nope", ""},
		{http.MethodDelete, "/api/session/nope", ""},
	} {
		w := do(t, h, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		assert.JSONEq(t, `{"error":"Session not found"}`, w.Body.String(), tc.path)
	}
}

func TestDeleteSession(t *testing.T) {
	_, h := newTestServer(t)
	id := createSession(t, h)

	w := do(t, h, http.MethodDelete, "/api/session/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/session/"+id, "").Code)
}

func wsURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + id
}

func TestWebSocket_InvalidSession(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "nope"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Equal(t, "Invalid session", ce.Text)
}

func TestWebSocket_StreamsPushes(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()
	id := createSession(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, id), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type string `json:"type"`
		Data struct {
			Statuses map[string]*string `json:"statuses"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status_update", first.Type)
	require.Contains(t, first.Data.Statuses, "a1")
	assert.Nil(t, first.Data.Statuses["a1"])

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/session/"+id+"/start", "").Code)

	seen := map[string]bool{}
	for !(seen["message"] && seen["session_status"] && seen["status_update"]) {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = true
	}
}
