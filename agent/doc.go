// Package agent drives a single participant through one turn of a session.
//
// A turn is a small state machine:
//
//	thinking -> acting (optional) -> speaking -> complete
//	any state -> error
//
// TurnRunner owns that sequence. For chat style models it issues a think
// call (private rationale plus an optional tool request, parsed leniently by
// ParseThought), executes the requested tool, then issues a speak call. For
// tool-native models the whole turn is delegated to ToolLoop, which keeps
// calling the model with tool results until it answers in plain text or its
// iteration ceiling is reached.
//
// Every outcome is folded into exactly one transcript entry; failures never
// escape Run.
package agent
