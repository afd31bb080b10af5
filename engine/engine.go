package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentstage/agent"
	"github.com/hupe1980/agentstage/broadcast"
	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
	"github.com/hupe1980/agentstage/session"
	"github.com/hupe1980/agentstage/tool"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = core.ErrSessionNotFound
	// ErrInvalidSession wraps validation failures of CreateSession.
	ErrInvalidSession = errors.New("invalid session")
	// ErrEmptyInstruction is returned for blank director instructions.
	ErrEmptyInstruction = core.ErrEmptyInstruction
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// Config defines the tuning parameters of session scheduling.
type Config struct {
	// PacingInterval is the pause between two turns of a session.
	PacingInterval time.Duration

	// HistoryWindow is the number of recent director and agent entries a
	// speaker sees.
	HistoryWindow int

	// MaxToolIterations bounds the model round trips of an agentic turn.
	MaxToolIterations int

	// ThinkDelay is a cosmetic pause after each turn settles.
	ThinkDelay time.Duration

	// MaxTokens caps provider replies; 0 keeps each adapter's default.
	MaxTokens int

	// SubscriberBuffer is the per-observer push buffer.
	SubscriberBuffer int
}

// DefaultConfig provides the default scheduling parameters.
var DefaultConfig = Config{
	PacingInterval:    500 * time.Millisecond,
	HistoryWindow:     agent.DefaultHistoryWindow,
	MaxToolIterations: agent.DefaultMaxIterations,
	SubscriberBuffer:  64,
}

// Options configures an Engine using the functional options pattern.
type Options struct {
	// Config contains scheduling parameters. Defaults to DefaultConfig.
	Config Config

	// Resolver turns agents into models. Defaults to an empty registry, in
	// which case every turn fails with a backend error.
	Resolver model.Resolver

	// Executor runs tool requests. Defaults to an executor without tools.
	Executor *tool.Executor

	// SessionStore keeps live sessions. Defaults to an in-memory store.
	SessionStore core.SessionStore

	// Hub fans out pushes. Defaults to a hub sized by Config.SubscriberBuffer.
	Hub *broadcast.Hub

	// Logger defaults to NoOp.
	Logger logging.Logger

	// Pick chooses the saboteur index for secret roles. Defaults to math/rand.
	Pick func(n int) int
}

// Engine owns the sessions of a process and their scheduler goroutines. All
// methods are safe for concurrent use.
type Engine struct {
	store    core.SessionStore
	hub      *broadcast.Hub
	resolver model.Resolver
	executor *tool.Executor
	config   Config
	logger   logging.Logger
	pick     func(n int) int

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	schedulers map[string]*scheduler
	closed     bool
}

// New creates an Engine with in-memory defaults for every collaborator.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Resolver == nil {
		opts.Resolver = model.NewRegistry()
	}
	if opts.Executor == nil {
		opts.Executor = tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = opts.Logger })
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Hub == nil {
		opts.Hub = broadcast.NewHub(func(o *broadcast.HubOptions) {
			o.Buffer = opts.Config.SubscriberBuffer
			o.Logger = opts.Logger
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      opts.SessionStore,
		hub:        opts.Hub,
		resolver:   opts.Resolver,
		executor:   opts.Executor,
		config:     opts.Config,
		logger:     logging.WithComponent(opts.Logger, "engine"),
		pick:       opts.Pick,
		ctx:        ctx,
		cancel:     cancel,
		schedulers: make(map[string]*scheduler),
	}
}

// Hub returns the broadcast hub sessions publish to.
func (e *Engine) Hub() *broadcast.Hub { return e.hub }

// NewSessionID returns an id of the form session_<unix millis>_<random>.
func NewSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// CreateSession validates spec and registers an idle session. Agents
// without an id get a generated one.
func (e *Engine) CreateSession(spec core.SessionSpec) (*core.Session, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	spec.Agents = append([]core.Agent(nil), spec.Agents...)
	for i := range spec.Agents {
		if strings.TrimSpace(spec.Agents[i].ID) == "" {
			spec.Agents[i].ID = fmt.Sprintf("agent%d", i+1)
		}
	}

	sess, err := core.NewSession(NewSessionID(), spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if err := e.store.Create(sess); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.schedulers[sess.ID] = e.newScheduler(sess)
	e.mu.Unlock()

	e.logger.Info("session created", "session_id", sess.ID, "scenario", sess.Scenario, "agents", len(spec.Agents), "secret_roles", sess.SecretRoles)
	return sess, nil
}

func (e *Engine) newScheduler(sess *core.Session) *scheduler {
	build := func(onStatus agent.StatusFunc) *agent.TurnRunner {
		return agent.NewTurnRunner(e.resolver, e.executor, func(o *agent.TurnOptions) {
			o.HistoryWindow = e.config.HistoryWindow
			o.MaxToolIterations = e.config.MaxToolIterations
			o.MaxTokens = e.config.MaxTokens
			o.ThinkDelay = e.config.ThinkDelay
			o.OnStatus = onStatus
			o.Logger = e.logger
		})
	}
	return newScheduler(sess, build, hubPort{hub: e.hub, sessionID: sess.ID}, e.config.PacingInterval, e.logger)
}

func (e *Engine) lookup(id string) (*core.Session, *scheduler, error) {
	if e.isClosed() {
		return nil, nil, ErrClosed
	}
	sess, err := e.store.Get(id)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sch, ok := e.schedulers[id]
	if !ok {
		sch = e.newScheduler(sess)
		e.schedulers[id] = sch
	}
	return sess, sch, nil
}

// Start begins or resumes the turn loop. Starting a running session is a
// no-op. On the first start secret roles are assigned and, while the
// transcript is still empty, the scenario and topic banners are appended.
func (e *Engine) Start(id string) error {
	sess, sch, err := e.lookup(id)
	if err != nil {
		return err
	}
	started := sch.start(e.ctx, func() {
		if saboteur, ok := assignSecretRoles(sess, e.pick); ok {
			e.logger.Debug("secret roles assigned", "session_id", id, "saboteur", saboteur.ID)
		}
		if sess.Transcript().Len() == 0 {
			if sess.Scenario != "" {
				sch.emit(core.NewSystemMessage("Scenario", sess.Scenario))
			}
			if sess.InitialPrompt != "" {
				sch.emit(core.NewSystemMessage("Topic", sess.InitialPrompt))
			}
		}
		sch.port.SessionState(true)
	})
	if started {
		e.logger.Info("session started", "session_id", id)
	}
	return nil
}

// Stop requests a cooperative stop. The turn in flight, if any, completes;
// no further turn begins. Stopping a stopped session is a no-op.
func (e *Engine) Stop(id string) error {
	_, sch, err := e.lookup(id)
	if err != nil {
		return err
	}
	if sch.halt() {
		sch.port.SessionState(false)
		e.logger.Info("session stopped", "session_id", id)
	}
	return nil
}

// Wait blocks until the session's loop has exited after Stop.
func (e *Engine) Wait(ctx context.Context, id string) error {
	_, sch, err := e.lookup(id)
	if err != nil {
		return err
	}
	return sch.wait(ctx)
}

// InjectDirectorPrompt queues a director instruction. It is released into
// the transcript at the start of the next turn loop iteration.
func (e *Engine) InjectDirectorPrompt(id, text string) error {
	sess, _, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := sess.EnqueueDirective(text); err != nil {
		return err
	}
	e.logger.Debug("director instruction queued", "session_id", id, "pending", sess.PendingDirectives())
	return nil
}

// Transcript returns a copy of the session's entries in insertion order.
func (e *Engine) Transcript(id string) ([]core.Entry, error) {
	sess, _, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.Transcript().Entries(), nil
}

// Export renders the transcript in the requested format.
func (e *Engine) Export(id string, format core.ExportFormat) ([]byte, error) {
	sess, _, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.Transcript().Export(format)
}

// Snapshot returns the observer view of a session.
func (e *Engine) Snapshot(id string) (core.SessionSnapshot, error) {
	sess, _, err := e.lookup(id)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Sessions lists all sessions ordered by creation time.
func (e *Engine) Sessions() []core.SessionSnapshot {
	list := e.store.List()
	out := make([]core.SessionSnapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

// Subscribe attaches an observer to a session's pushes.
func (e *Engine) Subscribe(id string) (*broadcast.Subscription, error) {
	if _, _, err := e.lookup(id); err != nil {
		return nil, err
	}
	return e.hub.Subscribe(id), nil
}

// Delete stops a session, waits for its loop and forgets it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.Stop(id); err != nil {
		return err
	}
	if err := e.Wait(ctx, id); err != nil {
		return err
	}
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.schedulers, id)
	e.mu.Unlock()
	e.hub.CloseSession(id)
	e.logger.Info("session deleted", "session_id", id)
	return nil
}

// Close stops every session, cancels in-flight provider calls, waits for
// all loops to exit and detaches all observers.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	schedulers := make([]*scheduler, 0, len(e.schedulers))
	for _, sch := range e.schedulers {
		schedulers = append(schedulers, sch)
	}
	e.mu.Unlock()

	for _, sch := range schedulers {
		sch.halt()
	}
	e.cancel()
	for _, sch := range schedulers {
		_ = sch.wait(context.Background())
	}
	e.hub.Close()
	e.logger.Info("engine closed", "sessions", len(schedulers))
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
