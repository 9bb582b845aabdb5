// Package session carries the operator's authenticated session explicitly.
//
// A Session is created once from a bearer token and handed to the components
// that make authenticated calls, either directly or through a context. There
// is no process-wide token store.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when no session is available for an authenticated call.
	ErrNoSession = errors.New("no session")
	// ErrExpired is returned when the session token has passed its expiry.
	ErrExpired = errors.New("session expired")
)

// Claims are the token claims issued by the evidence backend.
// Signature verification is the backend's job; the client only reads them.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
}

// Session is an authenticated operator session.
type Session struct {
	token     string
	subject   string
	role      string
	companyID string
	expiresAt time.Time
	clock     func() time.Time
}

// FromToken builds a session from a JWT bearer token.
func FromToken(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoSession
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	s := &Session{
		token:     token,
		subject:   claims.Subject,
		role:      claims.Role,
		companyID: claims.CompanyID,
		clock:     time.Now,
	}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Static wraps an opaque service token with no readable claims. It never expires.
func Static(token string) *Session {
	return &Session{token: strings.TrimSpace(token), clock: time.Now}
}

// WithClock overrides the clock used for expiry checks.
func (s *Session) WithClock(clock func() time.Time) *Session {
	s.clock = clock
	return s
}

func (s *Session) Subject() string      { return s.subject }
func (s *Session) Role() string         { return s.role }
func (s *Session) CompanyID() string    { return s.companyID }
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Expired reports whether the token carries an expiry that has passed.
func (s *Session) Expired() bool {
	if s.expiresAt.IsZero() {
		return false
	}
	return !s.clock().Before(s.expiresAt)
}

// BearerToken returns the token for an Authorization header.
func (s *Session) BearerToken() (string, error) {
	if s == nil || s.token == "" {
		return "", ErrNoSession
	}
	if s.Expired() {
		return "", fmt.Errorf("%w at %s", ErrExpired, s.expiresAt.UTC().Format(time.RFC3339))
	}
	return s.token, nil
}

// Identity names whose data the session may see: company and subject from
// the claims, or a digest of the token when it carries none. It is safe to
// use in cache keys and logs.
func (s *Session) Identity() string {
	if s == nil {
		return ""
	}
	if s.companyID != "" || s.subject != "" {
		return "company:" + s.companyID + "/sub:" + s.subject
	}
	sum := sha256.Sum256([]byte(s.token))
	return "token:" + hex.EncodeToString(sum[:8])
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
