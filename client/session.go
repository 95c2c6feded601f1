package client

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session holds the bearer token used for ticket API calls. It is passed to
// the client explicitly so nothing reads credentials from shared globals.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession returns a session holding token. An empty token is an anonymous session.
func NewSession(token string) *Session {
	return &Session{token: token}
}

func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the token, as happens when the API rejects it.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.Set("")
}

func (s *Session) claims() jwt.MapClaims {
	tok := s.Token()
	if tok == "" {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, _ := parsed.Claims.(jwt.MapClaims)
	return claims
}

// Subject returns the token's sub claim without verifying the signature.
func (s *Session) Subject() string {
	sub, _ := s.claims()["sub"].(string)
	return sub
}

// ExpiresAt returns the exp claim, or the zero time when absent or unparsable.
func (s *Session) ExpiresAt() time.Time {
	switch v := s.claims()["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// Expired reports whether the token carries an exp claim in the past.
func (s *Session) Expired(now time.Time) bool {
	exp := s.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}
