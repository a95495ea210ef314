// Package auth checks the admin password and issues admin session tokens.
//
// Admin sessions are HS256 JWTs signed with their own secret. They are
// unrelated to recipient access codes and download grants.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionTTL is the lifetime of an admin session token.
	SessionTTL = 24 * time.Hour

	adminID   = "admin"
	adminRole = "admin"
	issuer    = "vidshare"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid admin session")
)

// AdminClaims are the claims carried by an admin session token.
type AdminClaims struct {
	AdminID string `json:"adminId"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Session is a freshly issued admin token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Verifier checks admin session tokens.
type Verifier interface {
	Verify(token string) (*AdminClaims, error)
}

// AdminAuth holds the admin password hash and the session signing secret.
type AdminAuth struct {
	passwordHash []byte
	secret       []byte
	now          func() time.Time
}

// NewAdminAuth validates its inputs up front. The password hash must be a
// bcrypt hash; there is no plaintext comparison.
func NewAdminAuth(passwordHash, jwtSecret string) (*AdminAuth, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
	}
	return &AdminAuth{
		passwordHash: []byte(passwordHash),
		secret:       []byte(jwtSecret),
		now:          time.Now,
	}, nil
}

// Login compares password against the stored hash and issues a session.
func (a *AdminAuth) Login(password string) (*Session, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	expiresAt := now.Add(SessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		AdminID: adminID,
		Role:    adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses token and returns its claims if it is a live admin session.
func (a *AdminAuth) Verify(token string) (*AdminClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || claims.Role != adminRole {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
