package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
	"github.com/hupe1980/agentstage/tool"
)

// ErrEmptyReply is returned when a provider answers the speak phase with no text.
var ErrEmptyReply = errors.New("empty reply")

// TurnPhase names a state of the turn state machine.
type TurnPhase string

const (
	PhaseThinking TurnPhase = "thinking"
	PhaseActing   TurnPhase = "acting"
	PhaseSpeaking TurnPhase = "speaking"
	PhaseComplete TurnPhase = "complete"
	PhaseError    TurnPhase = "error"
)

// StatusFunc receives every status transition of the agent taking a turn.
type StatusFunc func(agentID string, status core.Status)

// TurnOptions configures a TurnRunner.
type TurnOptions struct {
	HistoryWindow     int
	MaxToolIterations int
	MaxTokens         int

	// ThinkDelay is a cosmetic pause after a turn settles, before Run returns.
	ThinkDelay time.Duration

	OnStatus StatusFunc
	Logger   logging.Logger
}

// TurnRunner drives one agent through think -> act -> speak and turns the
// outcome into exactly one transcript entry.
type TurnRunner struct {
	resolver model.Resolver
	executor *tool.Executor
	opts     TurnOptions
	logger   logging.Logger
}

// NewTurnRunner creates a runner resolving agent models through resolver.
func NewTurnRunner(resolver model.Resolver, executor *tool.Executor, optFns ...func(o *TurnOptions)) *TurnRunner {
	opts := TurnOptions{
		HistoryWindow:     DefaultHistoryWindow,
		MaxToolIterations: DefaultMaxIterations,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if executor == nil {
		executor = tool.NewExecutor()
	}
	return &TurnRunner{
		resolver: resolver,
		executor: executor,
		opts:     opts,
		logger:   logging.WithComponent(opts.Logger, "turn"),
	}
}

// Run plays one turn for a and returns the entry to append: an agent_turn
// on success, or an error entry naming the agent. Run never panics past the
// turn boundary and never returns a Go error.
func (r *TurnRunner) Run(ctx context.Context, sess *core.Session, a core.Agent) (entry core.Entry) {
	log := logging.WithAgent(logging.WithSession(r.logger, sess.ID), a.ID, a.Name)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("turn panic", "recover", rec)
			entry = r.fail(ctx, a, fmt.Errorf("panic: %v", rec))
		}
	}()

	out, err := r.play(ctx, sess, a, log)
	if err != nil {
		log.Warn("turn failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return r.fail(ctx, a, err)
	}

	entry = core.NewAgentTurn(a, out)
	r.status(a.ID, core.StatusIdle)
	log.Info("turn complete", "phase", PhaseComplete, "duration_ms", time.Since(start).Milliseconds(), "tool", entry.ToolUsed)
	r.pause(ctx)
	return entry
}

func (r *TurnRunner) play(ctx context.Context, sess *core.Session, a core.Agent, log logging.Logger) (core.TurnOutcome, error) {
	r.status(a.ID, core.StatusThinking)

	m, err := r.resolver.Resolve(a)
	if err != nil {
		return core.TurnOutcome{}, err
	}
	system, err := SystemPrompt(sess, a)
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("render system prompt: %w", err)
	}
	history := History(sess.Transcript(), r.opts.HistoryWindow)

	if m.Info().Agentic {
		return r.playAgentic(ctx, m, system, history, a, log)
	}
	return r.playStructured(ctx, m, system, history, a, log)
}

// playStructured runs the separate think, act and speak calls.
func (r *TurnRunner) playStructured(ctx context.Context, m model.Model, system string, history []core.Entry, a core.Agent, log logging.Logger) (core.TurnOutcome, error) {
	prompt, err := thinkPrompt(history, r.executor.Describe())
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("render think prompt: %w", err)
	}
	reply, err := r.complete(ctx, m, system, prompt, log)
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("think: %w", err)
	}
	th := ParseThought(reply)
	if !th.Structured {
		log.Debug("think reply not structured, using raw text")
	}

	var inv *core.ToolInvocation
	if th.Action != nil {
		r.status(a.ID, core.ActingStatus(th.Action.ToolName))
		res := r.executor.Execute(ctx, th.Action.ToolName, th.Action.ToolInput)
		inv = &res
	}

	r.status(a.ID, core.StatusSpeaking)
	prompt, err = speakPrompt(history, a, th, inv)
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("render speak prompt: %w", err)
	}
	reply, err = r.complete(ctx, m, system, prompt, log)
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("speak: %w", err)
	}
	msg := StripSpeakerPrefix(a.Name, reply)
	if msg == "" {
		return core.TurnOutcome{}, fmt.Errorf("speak: %w", ErrEmptyReply)
	}

	return core.TurnOutcome{PublicMessage: msg, PrivateThought: th.Thought, Tool: inv}, nil
}

// playAgentic hands the whole turn to the tool loop of a tool-native model.
func (r *TurnRunner) playAgentic(ctx context.Context, m model.Model, system string, history []core.Entry, a core.Agent, log logging.Logger) (core.TurnOutcome, error) {
	loop := NewToolLoop(m, r.executor, func(o *ToolLoopOptions) {
		o.MaxIterations = r.opts.MaxToolIterations
		o.MaxTokens = r.opts.MaxTokens
		o.Logger = log
		o.OnToolUse = func(call core.FunctionCall) {
			r.status(a.ID, core.ActingStatus(call.Name))
		}
	})

	res, err := loop.Run(ctx, system, []core.Content{core.NewTextContent(core.RoleUser, conversationText(history))})
	if err != nil {
		return core.TurnOutcome{}, err
	}
	r.status(a.ID, core.StatusSpeaking)

	msg := StripSpeakerPrefix(a.Name, res.Text)
	if msg == "" {
		return core.TurnOutcome{}, ErrEmptyReply
	}
	return core.TurnOutcome{PublicMessage: msg, Tool: res.LastTool()}, nil
}

func (r *TurnRunner) complete(ctx context.Context, m model.Model, system, prompt string, log logging.Logger) (string, error) {
	start := time.Now()
	resp, err := model.Complete(ctx, m, model.Request{
		Instructions: system,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, prompt)},
		MaxTokens:    r.opts.MaxTokens,
	})
	logging.LogProviderCall(log, m.Info().Name, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (r *TurnRunner) fail(ctx context.Context, a core.Agent, err error) core.Entry {
	entry := core.NewErrorEntry(a, fmt.Sprintf("%s failed to respond: %v", a.Name, err))
	r.status(a.ID, core.StatusError)
	r.pause(ctx)
	r.status(a.ID, core.StatusIdle)
	return entry
}

func (r *TurnRunner) status(agentID string, st core.Status) {
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(agentID, st)
	}
}

func (r *TurnRunner) pause(ctx context.Context) {
	if r.opts.ThinkDelay <= 0 {
		return
	}
	t := time.NewTimer(r.opts.ThinkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// speakerPrefixes caches the compiled label pattern per agent name.
var speakerPrefixes sync.Map // map[string]*regexp.Regexp

func speakerPrefix(name string) *regexp.Regexp {
	if re, ok := speakerPrefixes.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)^\**\[?` + regexp.QuoteMeta(name) + `\]?\**(?:\s*:|\s+[-–—])\s*\**\s*`)
	actual, _ := speakerPrefixes.LoadOrStore(name, re)
	return actual.(*regexp.Regexp)
}

// StripSpeakerPrefix removes a leading speaker label such as "Name:",
// "Name -" or "**Name**:" that models sometimes echo.
func StripSpeakerPrefix(name, text string) string {
	text = strings.TrimSpace(text)
	if name == "" {
		return text
	}
	return strings.TrimSpace(speakerPrefix(name).ReplaceAllString(text, ""))
}
