package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentstage/core"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted steps are consumed in order; once exhausted the optional handler
// answers, otherwise an echo of the last user text is returned.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	steps    []mockStep
	handler  func(req Request) (Response, error)
	requests []Request
}

type mockStep struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel for the chat backend.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: provider, Backend: BackendChat}}
}

// NewAgenticMockModel constructs a MockModel that takes the tool-native path.
func NewAgenticMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "anthropic", Backend: BackendAnthropic, Agentic: true}}
}

// AddResponse appends a scripted response.
func (m *MockModel) AddResponse(resp Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{resp: resp})
	return m
}

// AddText appends a scripted plain text completion.
func (m *MockModel) AddText(text string) *MockModel {
	return m.AddResponse(Response{Content: core.NewTextContent(core.RoleAssistant, text), FinishReason: FinishStop})
}

// AddToolCall appends a scripted tool call request.
func (m *MockModel) AddToolCall(id, name, args string) *MockModel {
	return m.AddResponse(Response{
		Content: core.Content{
			Role:  core.RoleAssistant,
			Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}}},
		},
		FinishReason: FinishToolCalls,
	})
}

// AddError appends a scripted provider failure.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// SetHandler installs a fallback invoked once scripted steps are exhausted.
func (m *MockModel) SetHandler(fn func(req Request) (Response, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Requests returns a copy of every request received.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockModel) next(req Request) (Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.steps) > 0 {
		st := m.steps[0]
		m.steps = m.steps[1:]
		m.mu.Unlock()
		return st.resp, st.err
	}
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	if len(req.Contents) == 0 {
		return Response{}, fmt.Errorf("no contents provided")
	}
	last := req.Contents[len(req.Contents)-1]
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, fmt.Sprintf("Mock response to: %s", last.Text())),
		FinishReason: FinishStop,
	}, nil
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		resp, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
