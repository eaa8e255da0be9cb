package domain

import "sync"

// Session is one login's handshake state. It replaces a process-wide latch:
// each request or connection owns the Session it was authenticated with.
type Session struct {
	mu       sync.Mutex
	email    string
	token    string
	provided bool
}

func NewSession(email string) *Session {
	return &Session{email: email}
}

// RestoreSession rebuilds a session that was provided earlier, for example
// from the claims of an access token.
func RestoreSession(email, token string) *Session {
	return &Session{email: email, token: token, provided: token != ""}
}

func (s *Session) Email() string {
	return s.email
}

func (s *Session) SafeEmail() string {
	return SafeEmail(s.email)
}

func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *Session) Provided() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provided
}

// Provide stores token and sets the latch. It reports false, leaving the
// session untouched, when a token was already provided.
func (s *Session) Provide(token string) bool {
	ok, _ := s.ProvideWith(func() (string, error) { return token, nil })
	return ok
}

// ProvideWith runs issue under the session lock and keeps the token it
// returns, so concurrent callers never issue twice. It reports false without
// calling issue when a token was already provided.
func (s *Session) ProvideWith(issue func() (string, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provided {
		return false, nil
	}
	token, err := issue()
	if err != nil {
		return false, err
	}
	s.token = token
	s.provided = true
	return true, nil
}

func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.provided = false
}
