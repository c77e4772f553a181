package auth

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

// Service defines the interface for authentication-related business logic.
type Service interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// Session holds the bearer credential of the signed-in customer. The token is only
// inspected, never verified: the backend is the one that trusts it.
type Session struct {
	clock clock.Clock

	mu      sync.RWMutex
	token   string
	subject string
	expires time.Time
}

// NewSession creates an empty session. clk may be nil.
func NewSession(clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.New()
	}
	return &Session{clock: clk}
}

// Set stores token after reading its subject and expiry.
func (s *Session) Set(token string) error {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return errs.Wrap(errs.ErrAuth, "malformed session token", err)
	}
	if claims.Subject == "" {
		return errs.New(errs.ErrAuth, "session token has no subject")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.subject = claims.Subject
	s.expires = time.Time{}
	if claims.ExpiresAt > 0 {
		s.expires = time.Unix(claims.ExpiresAt, 0)
	}
	return nil
}

// Token returns the credential, or an errs.ErrAuth error when there is none or it expired.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", errs.New(errs.ErrAuth, "not signed in")
	}
	if !s.expires.IsZero() && !s.clock.Now().Before(s.expires) {
		return "", errs.New(errs.ErrAuth, "session expired, sign in again")
	}
	return s.token, nil
}

// CustomerID returns the signed-in customer, or "" when signed out.
func (s *Session) CustomerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// Clear signs the customer out.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.subject, s.expires = "", "", time.Time{}
}
