package agent

import "sync"

// Identity is the authenticated principal used for delivery. The token is
// whatever the auth service issued; the agent never inspects it.
type Identity struct {
	UserID string
	Token  string
}

// IdentitySource exposes the current identity and change notifications.
type IdentitySource interface {
	Current() (Identity, bool)
	OnChange(func(identity Identity, ok bool))
}

// Session is a session-scoped identity holder with an explicit lifecycle:
// Set on sign-in or session restore, Clear on sign-out. It replaces any
// ambient "current user" state.
type Session struct {
	mu        sync.Mutex
	identity  Identity
	present   bool
	listeners []func(Identity, bool)
}

// NewSession builds an empty session.
func NewSession() *Session {
	return &Session{}
}

// Current returns the identity, if one is set.
func (s *Session) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.present
}

// Set installs the identity and notifies listeners.
func (s *Session) Set(identity Identity) {
	s.mu.Lock()
	s.identity = identity
	s.present = true
	listeners := append([]func(Identity, bool){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(identity, true)
	}
}

// Clear removes the identity and notifies listeners.
func (s *Session) Clear() {
	s.mu.Lock()
	s.identity = Identity{}
	s.present = false
	listeners := append([]func(Identity, bool){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(Identity{}, false)
	}
}

// OnChange registers a listener for sign-in and sign-out transitions.
func (s *Session) OnChange(fn func(Identity, bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
