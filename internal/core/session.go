package core

import (
	"sync"

	"github.com/dkeye/groupchat/internal/domain"
)

type SessionID string

// State is the lifecycle state of one realtime connection.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session binds a live transport endpoint to its lifecycle state.
// A user identity is present iff the state is Authenticated.
type Session struct {
	id     SessionID
	signal SignalConnection

	mu    sync.RWMutex
	state State
	user  domain.UserID
}

func NewSession(id SessionID, signal SignalConnection) *Session {
	return &Session{id: id, signal: signal}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the bound identity; ok is false unless Authenticated.
func (s *Session) User() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Authenticated {
		return "", false
	}
	return s.user, true
}

// Authenticate moves Unauthenticated -> Authenticated and binds uid.
// fresh is false when the session was already bound to the same uid.
func (s *Session) Authenticate(uid domain.UserID) (fresh bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return false, ErrSessionClosed
	case Authenticated:
		if s.user == uid {
			return false, nil
		}
		return false, ErrAlreadyAuthenticated
	}
	s.state = Authenticated
	s.user = uid
	return true, nil
}

// Close moves the session to Closed from any state. It reports the identity
// the session held if it was Authenticated. Calling it twice is a no-op.
func (s *Session) Close() (uid domain.UserID, wasAuthenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return "", false
	}
	uid, wasAuthenticated = s.user, s.state == Authenticated
	s.state = Closed
	s.user = ""
	return uid, wasAuthenticated
}

// TrySend forwards a frame to the transport unless the session is closed.
func (s *Session) TrySend(f Frame) error {
	if s.State() == Closed {
		return ErrSessionClosed
	}
	return s.signal.TrySend(f)
}
