// Package engine implements the session orchestration layer of agentstage.
//
// The Engine owns every live session of the process together with the
// shared collaborators a turn needs: the model resolver, the tool executor,
// the broadcast hub and the logger.
//
// # Core Responsibilities
//
// Session Lifecycle:
//   - Validated session creation with generated ids
//   - Idempotent start and stop, restart after stop
//   - Director instruction queueing
//   - Transcript access and export
//
// Scheduling:
//   - One scheduler goroutine per running session
//   - Strict round robin: the speaker of turn i is agents[i mod N]
//   - At most one director instruction is released per iteration, always
//     before that iteration's speaker is chosen
//   - A failed turn still advances the turn counter
//   - Pacing between turns, cut short by Stop
//
// Observation:
//   - Every appended entry and every status change is pushed through a
//     per-session Port backed by the broadcast hub
//
// # Concurrency Model
//
// Sessions never share mutable state. Inside a session the scheduler is the
// only goroutine that appends agent turns and advances the turn counter;
// inbound control calls only flip the run flag and append to the director
// queue. Stop is cooperative: an in-flight turn completes and its entry is
// appended, but no further turn begins. Close cancels the engine context,
// which also aborts in-flight provider calls.
//
// # Example
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Resolver = registry
//	    o.Executor = tool.NewExecutor()
//	})
//	defer eng.Close()
//
//	sess, err := eng.CreateSession(core.SessionSpec{Scenario: "The Island", Agents: agents})
//	if err != nil {
//	    return err
//	}
//	sub, _ := eng.Subscribe(sess.ID)
//	_ = eng.Start(sess.ID)
//	for msg := range sub.C {
//	    fmt.Println(msg.Type)
//	}
package engine
