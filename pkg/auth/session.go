package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AuthenticatedSubject is the sentinel subject carried by every valid session.
	AuthenticatedSubject = "authenticated"

	defaultSessionIssuer = "library-catalog"
	defaultSessionTTL    = 24 * time.Hour
	minSecretLength      = 16
)

var defaultSessionLeeway = 30 * time.Second

// SessionOptions configures claim issuance and validation.
type SessionOptions struct {
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
}

// SessionSigner issues and verifies HS256 session markers.
type SessionSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewSessionSigner builds a signer from a shared secret.
func NewSessionSigner(secret string, opts SessionOptions) (*SessionSigner, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	opts = normalizeSessionOptions(opts)
	return &SessionSigner{
		secret: []byte(secret),
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		leeway: opts.Leeway,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued markers.
func (s *SessionSigner) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed marker and its expiry.
func (s *SessionSigner) Issue() (string, time.Time, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   AuthenticatedSubject,
		Issuer:    s.issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Verify checks signature, issuer, expiry and the sentinel subject.
func (s *SessionSigner) Verify(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session marker missing")
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid session marker")
	}
	if claims.Subject != AuthenticatedSubject {
		return errors.New("unexpected session subject")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("session jti missing")
	}
	return nil
}

func normalizeSessionOptions(opts SessionOptions) SessionOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	if opts.Issuer == "" {
		opts.Issuer = defaultSessionIssuer
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultSessionTTL
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultSessionLeeway
	}
	return opts
}
