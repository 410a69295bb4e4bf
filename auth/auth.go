// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid session token")
)

const issuer = "propjockey"

// DefaultCookie is the session cookie name used when none is configured.
const DefaultCookie = "propjockey_session"

// Claims is the payload of a session token. The user identifier is the
// subject; it doubles as the notification address.
type Claims struct {
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	cookie string
	now    func() time.Time
}

func NewSessions(secret, cookie string) *Sessions {
	if cookie == "" {
		cookie = DefaultCookie
	}
	return &Sessions{secret: []byte(secret), cookie: cookie, now: time.Now}
}

// Issue signs a token for user that expires after ttl.
func (s *Sessions) Issue(user string, ttl time.Duration) (string, error) {
	if user == "" {
		return "", errors.New("empty user")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its user.
func (s *Sessions) Parse(raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// UserFromRequest reads the session from the Authorization bearer header,
// falling back to the session cookie.
func (s *Sessions) UserFromRequest(r *http.Request) (string, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", fmt.Errorf("%w: malformed Authorization header", ErrInvalidToken)
		}
		raw = strings.TrimSpace(token)
	} else if c, err := r.Cookie(s.cookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return "", ErrNoSession
	}
	return s.Parse(raw)
}

// Caller is the signed-in user, or "" for anonymous and invalid sessions.
func (s *Sessions) Caller(r *http.Request) string {
	user, err := s.UserFromRequest(r)
	if err != nil {
		return ""
	}
	return user
}

// Cookie wraps a token in the session cookie.
func (s *Sessions) Cookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
