// Package core provides the foundational domain types shared by every layer of
// agentstage. It defines:
//
//   - Agents (personas bound to a model and provider)
//   - Transcript entries (system messages, director instructions, agent turns, errors)
//   - Transcripts (append-only, goroutine-safe, exportable)
//   - Sessions (roster, run flag, turn counter, director queue, live statuses)
//   - Content parts used to talk to model providers
//
// The package keeps orchestration concerns (scheduling, providers, transport)
// out of scope so that higher layers can depend on it without cycles.
package core
