package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Tools  []Tool
	Logger logging.Logger
}

// Executor dispatches tool invocations by name. Execute never panics and
// never returns a Go error: every outcome, including unknown tools, invalid
// arguments and tool panics, is reported in the returned ToolInvocation.
type Executor struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewExecutor constructs an executor with the given tools registered.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	e := &Executor{tools: make(map[string]Tool), logger: logging.WithComponent(opts.Logger, "tool")}
	for _, t := range opts.Tools {
		e.Register(t)
	}
	return e
}

// Register adds or replaces a tool.
func (e *Executor) Register(t Tool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[t.Name()] = t
}

// Names returns the registered tool names sorted alphabetically.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tools))
	for n := range e.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (e *Executor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tools)
}

func (e *Executor) lookup(name string) (Tool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tools[name]
	return t, ok
}

// Definitions exports the tool schemas in model request form.
func (e *Executor) Definitions() []model.ToolDefinition {
	names := e.Names()
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, n := range names {
		t, ok := e.lookup(n)
		if !ok {
			continue
		}
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Describe renders a plain text catalogue of the tools for prompts that
// cannot carry native tool declarations.
func (e *Executor) Describe() string {
	var b strings.Builder
	for _, n := range e.Names() {
		t, ok := e.lookup(n)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", t.Name(), t.Description())
		if props, ok := t.Parameters()["properties"].(map[string]any); ok && len(props) > 0 {
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&b, " (input: %s)", strings.Join(keys, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Execute runs the named tool with structured input.
func (e *Executor) Execute(ctx context.Context, name string, input map[string]any) core.ToolInvocation {
	inv := core.ToolInvocation{Name: name, Input: input}

	t, ok := e.lookup(name)
	if !ok {
		inv.IsError = true
		inv.Error = NewToolError(name, fmt.Sprintf("unknown tool %q", name), CodeUnknownTool).Error()
		e.logger.Warn("unknown tool requested", "tool_name", name)
		return inv
	}
	if input == nil {
		input = map[string]any{}
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(name, r)
				e.logger.Error("tool panic", "tool_name", name, "recover", r)
			}
		}()
		result, err = t.Call(ctx, input)
	}()
	logging.LogToolCall(e.logger, name, time.Since(start), err)

	if err != nil {
		inv.IsError = true
		inv.Error = err.Error()
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			inv.Error = toolErr.Message
		}
		return inv
	}
	inv.Result = formatResult(result)
	return inv
}

// ExecuteCall decodes a model-issued call's JSON arguments and executes it.
func (e *Executor) ExecuteCall(ctx context.Context, fc core.FunctionCall) core.ToolInvocation {
	input := map[string]any{}
	if strings.TrimSpace(fc.Arguments) != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &input); err != nil {
			return core.ToolInvocation{
				Name:    fc.Name,
				IsError: true,
				Error:   NewToolError(fc.Name, fmt.Sprintf("invalid arguments: %v", err), CodeInvalidArgs).Message,
			}
		}
	}
	return e.Execute(ctx, fc.Name, input)
}

func panicError(name string, r any) error {
	return &ToolError{
		Tool:    name,
		Message: fmt.Sprintf("panic: %v", r),
		Code:    CodeExecution,
		Details: string(debug.Stack()),
	}
}

func formatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	case []byte:
		return string(r)
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprintf("%v", r)
		}
		return string(b)
	}
}
