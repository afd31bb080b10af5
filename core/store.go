package core

import "errors"

var (
	// ErrSessionNotFound is returned by stores for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")
)

// SessionStore keeps the live sessions of a process. Sessions synchronize
// themselves, so stores hand out the stored pointer rather than a copy.
type SessionStore interface {
	Create(s *Session) error
	Get(id string) (*Session, error)
	Delete(id string) error
	List() []*Session
}
