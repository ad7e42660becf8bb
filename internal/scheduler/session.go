package scheduler

import "sync"

// Session holds the identity of one connection. It starts anonymous and is
// safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	identity *Identity
}

func NewSession() *Session {
	return &Session{}
}

// NewSessionFor returns a session already logged in as id.
func NewSessionFor(id Identity) *Session {
	return &Session{identity: &id}
}

func (s *Session) Login(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return ErrAlreadyLoggedIn
	}
	s.identity = &id
	return nil
}

func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil {
		return ErrNotLoggedIn
	}
	s.identity = nil
	return nil
}

// Current returns the logged in identity, if any.
func (s *Session) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// RequireAny fails with ErrNotAuthenticated on an anonymous session.
func (s *Session) RequireAny() (Identity, error) {
	id, ok := s.Current()
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}
	return id, nil
}

// Require additionally checks the role.
func (s *Session) Require(role Role) (Identity, error) {
	id, err := s.RequireAny()
	if err != nil {
		return Identity{}, err
	}
	if id.Role != role {
		return Identity{}, ErrWrongRole
	}
	return id, nil
}
