// Package agentstage provides a high-level façade over the session Engine,
// enabling rapid construction of multi-agent, turn-based conversations. Most
// applications interact with this package by:
//  1. Creating a Stage via New() (optionally overriding the default resolver,
//     tool executor, session store and logger)
//  2. Creating a session with a roster of agents and a seed topic
//  3. Starting it, steering it with director instructions and observing it
//     through a subscription or the transcript
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing.
package agentstage

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentstage/broadcast"
	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/engine"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
	"github.com/hupe1980/agentstage/session"
	"github.com/hupe1980/agentstage/tool"
)

// ErrSubscriptionClosed is returned by RunSync when the session's push
// stream ends before the requested turns completed.
var ErrSubscriptionClosed = errors.New("session subscription closed")

// Options configures the Stage instance.
type Options struct {
	// Engine configuration (pacing, history window, tool ceiling, buffers)
	EngineConfig engine.Config

	// Resolver maps agents to models. Defaults to an empty registry.
	Resolver model.Resolver

	// Tools available to every agent.
	Tools []tool.Tool

	// SessionStore defaults to an in-memory implementation.
	SessionStore core.SessionStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// StopTimeout bounds how long RunSync waits for the turn in flight after
	// its context was cancelled. Defaults to 30s.
	StopTimeout time.Duration
}

// Stage is the high-level façade aggregating the engine and its services.
type Stage struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Stage with optional overrides.
func New(optFns ...func(o *Options)) *Stage {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
		StopTimeout:  30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}

	executor := tool.NewExecutor(func(o *tool.ExecutorOptions) {
		o.Tools = opts.Tools
		o.Logger = opts.Logger
	})

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Resolver = opts.Resolver
		o.Executor = executor
		o.SessionStore = opts.SessionStore
		o.Logger = opts.Logger
	})

	return &Stage{opts: opts, engine: e}
}

// Engine exposes the underlying engine, e.g. to mount the HTTP server.
func (s *Stage) Engine() *engine.Engine { return s.engine }

// CreateSession registers a new idle session and returns its id.
func (s *Stage) CreateSession(spec core.SessionSpec) (string, error) {
	sess, err := s.engine.CreateSession(spec)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Start begins or resumes the session's turn loop.
func (s *Stage) Start(sessionID string) error { return s.engine.Start(sessionID) }

// Stop requests a cooperative stop.
func (s *Stage) Stop(sessionID string) error { return s.engine.Stop(sessionID) }

// Direct queues a director instruction for the next turn.
func (s *Stage) Direct(sessionID, text string) error {
	return s.engine.InjectDirectorPrompt(sessionID, text)
}

// Subscribe attaches an observer to the session's pushes.
func (s *Stage) Subscribe(sessionID string) (*broadcast.Subscription, error) {
	return s.engine.Subscribe(sessionID)
}

// Transcript returns the session's entries in order.
func (s *Stage) Transcript(sessionID string) ([]core.Entry, error) {
	return s.engine.Transcript(sessionID)
}

// RunSync is a synchronous helper that starts the session, lets at least
// turns turns complete, stops it and returns the transcript. The turn in
// flight when the stop lands still completes. On context cancellation the
// session is stopped, RunSync waits at most Options.StopTimeout for the
// in-flight turn and returns the entries recorded so far.
func (s *Stage) RunSync(ctx context.Context, sessionID string, turns int) ([]core.Entry, error) {
	snap, err := s.engine.Snapshot(sessionID)
	if err != nil {
		return nil, err
	}
	target := snap.TurnIndex + turns

	sub, err := s.engine.Subscribe(sessionID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	if err := s.engine.Start(sessionID); err != nil {
		return nil, err
	}

	// Every push is a wake-up; the turn counter is the source of truth, so
	// a dropped push never loses a completed turn.
	runErr := s.awaitTurns(ctx, sessionID, sub, target)

	if err := s.engine.Stop(sessionID); err != nil {
		return nil, err
	}
	waitCtx := ctx
	if runErr != nil {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(context.Background(), s.opts.StopTimeout)
		defer cancel()
	}
	if err := s.engine.Wait(waitCtx, sessionID); err != nil {
		runErr = errors.Join(runErr, err)
	}
	entries, err := s.engine.Transcript(sessionID)
	if err != nil {
		return nil, err
	}
	return entries, runErr
}

func (s *Stage) awaitTurns(ctx context.Context, sessionID string, sub *broadcast.Subscription, target int) error {
	for {
		snap, err := s.engine.Snapshot(sessionID)
		if err != nil {
			return err
		}
		if snap.TurnIndex >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.C:
			if !ok {
				return ErrSubscriptionClosed
			}
		}
	}
}

// Close stops every session and releases the engine.
func (s *Stage) Close() error { return s.engine.Close() }
