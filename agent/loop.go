package agent

import (
	"context"
	"time"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
	"github.com/hupe1980/agentstage/tool"
)

// MaxIterationsText is returned when the iteration ceiling is hit before the
// model produced a final answer.
const MaxIterationsText = "[Agent reached maximum tool iterations]"

// DefaultMaxIterations bounds the model round trips of one agentic turn.
const DefaultMaxIterations = 10

// LoopState is the phase of a ToolLoop run.
type LoopState string

const (
	StateAwaitingModel  LoopState = "awaiting-model"
	StateExecutingTools LoopState = "executing-tools"
	StateDone           LoopState = "done"
)

// ToolLoopOptions configures a ToolLoop.
type ToolLoopOptions struct {
	MaxIterations int
	MaxTokens     int

	// OnToolUse fires synchronously for every tool request before it runs.
	OnToolUse func(call core.FunctionCall)

	Logger logging.Logger
}

// LoopResult is the outcome of a ToolLoop run.
type LoopResult struct {
	Text       string
	ToolsUsed  []core.ToolInvocation
	Iterations int
	Exhausted  bool
}

// LastTool returns the most recent tool invocation, if any.
func (r LoopResult) LastTool() *core.ToolInvocation {
	if len(r.ToolsUsed) == 0 {
		return nil
	}
	inv := r.ToolsUsed[len(r.ToolsUsed)-1]
	return &inv
}

// ToolLoop drives a tool-native model through repeated request -> tool
// execution rounds until it answers with plain text or the iteration
// ceiling is reached.
type ToolLoop struct {
	model    model.Model
	executor *tool.Executor
	opts     ToolLoopOptions
	logger   logging.Logger
}

// NewToolLoop creates a loop over the given model and executor. A nil
// executor behaves as one with no tools registered.
func NewToolLoop(m model.Model, executor *tool.Executor, optFns ...func(o *ToolLoopOptions)) *ToolLoop {
	opts := ToolLoopOptions{
		MaxIterations: DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if executor == nil {
		executor = tool.NewExecutor()
	}
	return &ToolLoop{model: m, executor: executor, opts: opts, logger: opts.Logger}
}

// Run executes the loop. The contents slice is not modified; the running
// message list is a private copy. Provider errors abort the run.
func (l *ToolLoop) Run(ctx context.Context, instructions string, contents []core.Content) (LoopResult, error) {
	messages := append([]core.Content(nil), contents...)
	budget := core.NewIterationBudget(l.opts.MaxIterations)
	defs := l.executor.Definitions()

	var result LoopResult
	state := StateAwaitingModel

	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := budget.Increment(); err != nil {
			l.logger.Warn("tool loop exhausted", "max_iterations", l.opts.MaxIterations, "tools_used", len(result.ToolsUsed))
			result.Text = MaxIterationsText
			result.Exhausted = true
			break
		}
		result.Iterations = budget.Count()

		start := time.Now()
		resp, err := model.Complete(ctx, l.model, model.Request{
			Instructions: instructions,
			Contents:     messages,
			Tools:        defs,
			MaxTokens:    l.opts.MaxTokens,
		})
		logging.LogProviderCall(l.logger, l.model.Info().Name, time.Since(start), err)
		if err != nil {
			return result, err
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			result.Text = resp.Text()
			state = StateDone
			continue
		}

		state = StateExecutingTools
		results := core.Content{Role: core.RoleTool}
		for _, call := range calls {
			if l.opts.OnToolUse != nil {
				l.opts.OnToolUse(call)
			}
			inv := l.executor.ExecuteCall(ctx, call)
			result.ToolsUsed = append(result.ToolsUsed, inv)
			results.Parts = append(results.Parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: inv.Result,
				Error:    inv.Error,
			}})
		}
		messages = append(messages, resp.Content, results)
		state = StateAwaitingModel
	}

	return result, nil
}
