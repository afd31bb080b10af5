package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentstage/agent"
	"github.com/hupe1980/agentstage/broadcast"
	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/logging"
)

// Port receives everything a session produces for observers. Each scheduler
// gets its own Port bound to its session.
type Port interface {
	Entry(e core.Entry)
	Status(agentID string, st core.Status)
	SessionState(running bool)
}

// hubPort publishes a single session's output through the broadcast hub.
type hubPort struct {
	hub       *broadcast.Hub
	sessionID string
}

func (p hubPort) Entry(e core.Entry) { p.hub.PublishEntry(p.sessionID, e) }

func (p hubPort) Status(agentID string, st core.Status) {
	p.hub.PublishStatus(p.sessionID, agentID, st)
}

func (p hubPort) SessionState(running bool) { p.hub.PublishSessionState(p.sessionID, running) }

// scheduler runs the turn loop of one session.
type scheduler struct {
	sess   *core.Session
	runner *agent.TurnRunner
	port   Port
	pacing time.Duration
	logger logging.Logger

	// mu orders start/stop against the loop claiming its next turn.
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newScheduler(sess *core.Session, runner func(agent.StatusFunc) *agent.TurnRunner, port Port, pacing time.Duration, logger logging.Logger) *scheduler {
	s := &scheduler{
		sess:   sess,
		port:   port,
		pacing: pacing,
		logger: logging.WithSession(logger, sess.ID),
	}
	s.runner = runner(s.setStatus)
	return s
}

func (s *scheduler) setStatus(agentID string, st core.Status) {
	s.sess.SetStatus(agentID, st)
	s.port.Status(agentID, st)
}

func (s *scheduler) emit(e core.Entry) {
	s.sess.Transcript().Append(e)
	s.port.Entry(e)
}

// start launches the loop and reports false if it was already running.
// before, when set, runs once the run flag flipped and ahead of the first
// turn. A loop started right after stop first waits for its predecessor to
// finish the turn that was in flight.
func (s *scheduler) start(ctx context.Context, before func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.SetRunning(true) {
		return false
	}
	if before != nil {
		before()
	}
	prev := s.done
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, prev, s.stop, s.done)
	return true
}

// halt requests a cooperative stop and reports false if the loop was not
// running.
func (s *scheduler) halt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.SetRunning(false) {
		return false
	}
	close(s.stop)
	return true
}

// wait blocks until the most recent loop has exited.
func (s *scheduler) wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// claim atomically checks for a stop request and begins the next turn.
func (s *scheduler) claim(stop <-chan struct{}) (core.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stop:
		return core.Turn{}, false
	default:
	}
	return s.sess.BeginTurn()
}

func (s *scheduler) loop(ctx context.Context, prev <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	s.logger.Info("session loop started", "turn_index", s.sess.TurnIndex())
	defer func() {
		s.logger.Info("session loop stopped", "turn_index", s.sess.TurnIndex())
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		turn, ok := s.claim(stop)
		if !ok {
			return
		}

		if turn.Directive != "" {
			s.emit(core.NewDirectorInstruction(turn.Directive))
		}

		s.logger.Debug("turn started", "turn_index", turn.Index, "agent_id", turn.Agent.ID)
		entry := s.runner.Run(ctx, s.sess, turn.Agent)
		// The turn counts as taken before observers see its entry.
		s.sess.AdvanceTurn()
		s.emit(entry)

		if !s.pause(ctx, stop) {
			return
		}
	}
}

// pause waits out the pacing interval. It returns false when the loop
// should exit instead of starting another turn.
func (s *scheduler) pause(ctx context.Context, stop <-chan struct{}) bool {
	if s.pacing <= 0 {
		return true
	}
	t := time.NewTimer(s.pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}
