package audiocore

import (
	"sync"

	"github.com/google/uuid"
)

// OwnerToken identifies the input that drives a session's frame buffer.
// Every input creates its own token with NewOwnerToken.
type OwnerToken uuid.UUID

// NewOwnerToken returns a random owner token
func NewOwnerToken() OwnerToken {
	return OwnerToken(uuid.New())
}

// IsZero reports whether the token was never assigned
func (t OwnerToken) IsZero() bool {
	return uuid.UUID(t) == uuid.Nil
}

func (t OwnerToken) String() string {
	return uuid.UUID(t).String()
}

// Session is one recording run handed to every lifecycle call. At most one
// input owns it at a time; other inputs calling NewFrameReady with the same
// session are no-ops.
type Session struct {
	ID            uuid.UUID
	PreserveAudio bool

	mu    sync.Mutex
	owner OwnerToken
}

// NewSession creates a session with a fresh ID
func NewSession(preserveAudio bool) *Session {
	return &Session{
		ID:            uuid.New(),
		PreserveAudio: preserveAudio,
	}
}

// Claim takes ownership for token if the session is unowned. It returns true
// when token owns the session after the call.
func (s *Session) Claim(token OwnerToken) bool {
	if token.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner.IsZero() {
		s.owner = token
		return true
	}
	return s.owner == token
}

// Release clears ownership if token holds it
func (s *Session) Release(token OwnerToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.IsZero() || s.owner != token {
		return false
	}
	s.owner = OwnerToken{}
	return true
}

// Owner returns the current owner, if any
func (s *Session) Owner() (OwnerToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, !s.owner.IsZero()
}
