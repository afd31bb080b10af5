// Package session houses concrete implementations of core.SessionStore. The
// interface itself lives in core so higher level packages (engine, server)
// never depend on a concrete storage backend.
package session
