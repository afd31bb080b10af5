package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentstage/core"
)

// Backend identifies one provider family.
type Backend string

const (
	// BackendAnthropic is the tool-native (agentic) backend.
	BackendAnthropic Backend = "anthropic"
	// BackendChat is any OpenAI compatible chat-completion endpoint (OpenAI, OpenRouter).
	BackendChat Backend = "chat"
	// BackendGoogle is the Gemini API.
	BackendGoogle Backend = "google"
)

// IsAgenticModel reports whether a model string names a tool-native model.
func IsAgenticModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "claude") || strings.Contains(m, "anthropic")
}

// Classify selects the backend for an agent's provider and model strings.
func Classify(provider, model string) Backend {
	if IsAgenticModel(model) {
		return BackendAnthropic
	}
	p := strings.ToLower(provider)
	if p == "google" || p == "gemini" || strings.Contains(strings.ToLower(model), "gemini") {
		return BackendGoogle
	}
	return BackendChat
}

// Default model ids used when a model string is not recognized.
const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultGoogleModel    = "gemini-2.0-flash"
)

var anthropicModels = map[string]string{
	"anthropic/claude-3-opus":     "claude-3-opus-20240229",
	"claude-3-opus":               "claude-3-opus-20240229",
	"anthropic/claude-3-sonnet":   "claude-3-sonnet-20240229",
	"claude-3-sonnet":             "claude-3-sonnet-20240229",
	"anthropic/claude-3-haiku":    "claude-3-haiku-20240307",
	"claude-3-haiku":              "claude-3-haiku-20240307",
	"anthropic/claude-3.5-sonnet": "claude-3-5-sonnet-20241022",
	"anthropic/claude-3-5-sonnet": "claude-3-5-sonnet-20241022",
	"claude-3.5-sonnet":           "claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet":           "claude-3-5-sonnet-20241022",
	"anthropic/claude-3.5-haiku":  "claude-3-5-haiku-20241022",
	"claude-3.5-haiku":            "claude-3-5-haiku-20241022",
	"claude-3-5-haiku":            "claude-3-5-haiku-20241022",
	"anthropic/claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-sonnet-4":             "claude-sonnet-4-20250514",
	"anthropic/claude-opus-4":     "claude-opus-4-20250514",
	"claude-opus-4":               "claude-opus-4-20250514",
}

var chatModels = map[string]string{
	"gpt-4o":               "gpt-4o",
	"openai/gpt-4o":        "gpt-4o",
	"gpt-4o-mini":          "gpt-4o-mini",
	"openai/gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4-turbo":          "gpt-4-turbo",
	"openai/gpt-4-turbo":   "gpt-4-turbo",
	"gpt-4.1":              "gpt-4.1",
	"openai/gpt-4.1":       "gpt-4.1",
	"gpt-4.1-mini":         "gpt-4.1-mini",
	"openai/gpt-4.1-mini":  "gpt-4.1-mini",
	"gpt-3.5-turbo":        "gpt-3.5-turbo",
	"openai/gpt-3.5-turbo": "gpt-3.5-turbo",
}

var googleModels = map[string]string{
	"gemini-1.5-pro":          "gemini-1.5-pro",
	"google/gemini-1.5-pro":   "gemini-1.5-pro",
	"gemini-pro":              "gemini-1.5-pro",
	"google/gemini-pro":       "gemini-1.5-pro",
	"gemini-1.5-flash":        "gemini-1.5-flash",
	"google/gemini-1.5-flash": "gemini-1.5-flash",
	"gemini-2.0-flash":        "gemini-2.0-flash",
	"google/gemini-2.0-flash": "gemini-2.0-flash",
	"gemini-2.5-pro":          "gemini-2.5-pro",
	"google/gemini-2.5-pro":   "gemini-2.5-pro",
	"gemini-2.5-flash":        "gemini-2.5-flash",
	"google/gemini-2.5-flash": "gemini-2.5-flash",
}

// ResolveModelID maps a free form model string to the backend's concrete id.
//
// Rules:
//   - anthropic: dated ids ("claude-...-202...") pass through, known aliases
//     are looked up, anything else falls back to DefaultAnthropicModel
//   - chat: known aliases are looked up, router qualified "vendor/model" ids
//     are forwarded unchanged, bare unknown ids fall back to DefaultChatModel
//   - google: known aliases are looked up, "gemini-*" ids pass through,
//     anything else falls back to DefaultGoogleModel
func ResolveModelID(backend Backend, model string) string {
	m := strings.TrimSpace(model)
	key := strings.ToLower(m)
	switch backend {
	case BackendAnthropic:
		if strings.HasPrefix(key, "claude-") && strings.Contains(key, "-202") {
			return m
		}
		if id, ok := anthropicModels[key]; ok {
			return id
		}
		return DefaultAnthropicModel
	case BackendGoogle:
		if id, ok := googleModels[key]; ok {
			return id
		}
		if strings.HasPrefix(key, "gemini-") {
			return m
		}
		return DefaultGoogleModel
	default:
		if id, ok := chatModels[key]; ok {
			return id
		}
		if strings.Contains(key, "/") {
			return m
		}
		return DefaultChatModel
	}
}

// Factory builds a Model for a resolved model id.
type Factory func(modelID string) (Model, error)

// Resolver turns an agent into a ready Model.
type Resolver interface {
	Resolve(agent core.Agent) (Model, error)
}

// ErrBackendUnavailable is wrapped when no factory is registered for a backend.
var ErrBackendUnavailable = errors.New("backend not configured")

// Registry maps backends to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Backend]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Backend]Factory)}
}

// Register installs (or replaces) the factory for a backend.
func (r *Registry) Register(b Backend, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[b] = f
}

// Backends lists the configured backends.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.factories))
	for b := range r.factories {
		out = append(out, b)
	}
	return out
}

// Resolve classifies the agent, resolves its model id and builds the Model.
// When the classified backend has no factory but BackendChat does, the
// agent is served through the chat endpoint under its router id
// ("anthropic/...", "google/...") and takes the structured turn path.
func (r *Registry) Resolve(agent core.Agent) (Model, error) {
	backend := Classify(agent.Provider, agent.Model)
	r.mu.RLock()
	f, ok := r.factories[backend]
	chat, hasChat := r.factories[BackendChat]
	r.mu.RUnlock()
	if ok {
		return f(ResolveModelID(backend, agent.Model))
	}
	if hasChat {
		return chat(RouterModelID(backend, agent.Model))
	}
	return nil, fmt.Errorf("%w: %s (model %q)", ErrBackendUnavailable, backend, agent.Model)
}

// RouterModelID returns the vendor qualified id an OpenAI compatible router
// expects for a model of the given backend. Ids that already carry a vendor
// prefix are kept as is.
func RouterModelID(backend Backend, model string) string {
	m := strings.TrimSpace(model)
	if m == "" {
		switch backend {
		case BackendAnthropic:
			m = "claude-3.5-sonnet"
		case BackendGoogle:
			m = DefaultGoogleModel
		default:
			return DefaultChatModel
		}
	}
	if strings.Contains(m, "/") {
		return m
	}
	switch backend {
	case BackendAnthropic:
		return "anthropic/" + m
	case BackendGoogle:
		return "google/" + m
	default:
		return ResolveModelID(BackendChat, m)
	}
}
