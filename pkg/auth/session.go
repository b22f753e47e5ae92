// Package auth holds the bearer identity the SDK acts with. The core only
// needs two signals from it: whether a usable token is present, and who the
// user is for logging. Token acquisition (OAuth/PKCE, refresh) happens
// elsewhere; tokens are parsed without signature verification because the
// API verifies them.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is a concurrency-safe holder for the current bearer token.
type Session struct {
	mu       sync.RWMutex
	token    string
	formsKey bool
	now      func() time.Time
}

// NewSession creates a session for a user access token. An empty token
// means the user is not logged in.
func NewSession(token string) *Session {
	return &Session{token: strings.TrimSpace(token), now: time.Now}
}

// NewFormsKeySession creates a session for a forms key token. Forms key
// submissions are attributed to the key rather than a user.
func NewFormsKeySession(token string) *Session {
	s := NewSession(token)
	s.formsKey = true
	return s
}

// WithClock overrides the clock used for expiry checks.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Token returns the bearer token, "" when logged out.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the token (login or refresh).
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear logs out.
func (s *Session) Clear() {
	s.SetToken("")
}

func (s *Session) claims() jwt.MapClaims {
	token := s.Token()
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// IsAuthenticated reports whether a token is present and, when it is a
// JWT carrying an expiry, not yet expired. Opaque tokens count as valid;
// the API answers 401 if they are not.
func (s *Session) IsAuthenticated() bool {
	if s == nil || s.Token() == "" {
		return false
	}
	exp, ok := s.ExpiresAt()
	if !ok {
		return true
	}
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()
	return now().Before(exp)
}

// ExpiresAt returns the token's exp claim.
func (s *Session) ExpiresAt() (time.Time, bool) {
	claims := s.claims()
	if claims == nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Username returns the best human identifier found in the token claims.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	claims := s.claims()
	for _, name := range []string{"email", "username", "cognito:username", "sub"} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// KeyID returns the forms key id (the token issuer) for forms key
// sessions, "" otherwise.
func (s *Session) KeyID() string {
	if s == nil || !s.formsKey {
		return ""
	}
	claims := s.claims()
	if claims == nil {
		return ""
	}
	iss, _ := claims.GetIssuer()
	return iss
}
