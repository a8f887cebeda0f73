package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("access denied")
)

// Session is an issued marker and the instant it stops being accepted.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Gate guards mutating routes with a single configured credential pair.
type Gate struct {
	username string
	password string
	sessions *SessionSigner
}

// NewGate builds a gate. Both credential halves must be non-blank.
func NewGate(username, password string, sessions *SessionSigner) (*Gate, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errors.New("auth username and password required")
	}
	if sessions == nil {
		return nil, errors.New("session signer required")
	}
	return &Gate{username: username, password: password, sessions: sessions}, nil
}

// Login checks the pair and issues a session on match.
// A blank username or password is reported as missing before any comparison.
func (g *Gate) Login(username, password string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	if !userOK || !passOK {
		return Session{}, ErrInvalidCredentials
	}
	token, expires, err := g.sessions.Issue()
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return Session{Token: token, ExpiresAt: expires}, nil
}

// Check admits a request carrying a valid marker.
func (g *Gate) Check(marker string) error {
	if err := g.sessions.Verify(marker); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Logout always succeeds. Markers are client-held, so the caller clears the cookie.
func (g *Gate) Logout() error {
	return nil
}

// SessionTTL is the lifetime of markers issued by Login.
func (g *Gate) SessionTTL() time.Duration {
	return g.sessions.TTL()
}
