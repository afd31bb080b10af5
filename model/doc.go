// Package model defines the provider-agnostic abstractions for talking to
// language models inside agentstage.
//
// Core goals:
//   - One normalized request/response shape regardless of vendor
//   - Tool call requests and results paired by provider ids
//   - A closed set of backends (anthropic, chat, google) selected by Classify
//   - Static model-id resolution with safe defaults (ResolveModelID)
//   - Lightweight mocking for tests (MockModel)
//
// Concrete adapters live in the anthropic, openai and google subpackages and
// are wired through a Registry so higher layers never import vendor SDKs.
package model
