package testutil

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/model"
)

// StaticResolver resolves agents to pre-built models keyed by agent id.
// Unknown agents resolve to Fallback when set, otherwise to an error.
type StaticResolver struct {
	mu       sync.Mutex
	models   map[string]model.Model
	Fallback model.Model
}

// NewStaticResolver returns an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{models: map[string]model.Model{}}
}

// Set binds a model to an agent id (chainable).
func (r *StaticResolver) Set(agentID string, m model.Model) *StaticResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[agentID] = m
	return r
}

// Resolve implements model.Resolver.
func (r *StaticResolver) Resolve(a core.Agent) (model.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[a.ID]; ok {
		return m, nil
	}
	if r.Fallback != nil {
		return r.Fallback, nil
	}
	return nil, fmt.Errorf("%w: no model for agent %s", model.ErrBackendUnavailable, a.ID)
}
