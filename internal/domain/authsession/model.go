package authsession

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coachhub/internal/domain/rbac"
)

// MaxAge is how long a browser session lives regardless of token refreshes.
const MaxAge = 24 * time.Hour

// RefreshLeeway is how early an access token is refreshed before it expires.
const RefreshLeeway = 60 * time.Second

// Domain errors
var (
	ErrEmptyToken       = errors.New("session token cannot be empty")
	ErrEmptyUser        = errors.New("session user cannot be empty")
	ErrEmptyAccessToken = errors.New("access token cannot be empty")
	ErrMalformedToken   = errors.New("access token is malformed")
	ErrNotFound         = errors.New("auth session not found")
)

// Claims are the access token fields the portal reads.
// The remote API verifies signatures; the portal only reads.
type Claims struct {
	UserID         string `json:"uid"`
	Email          string `json:"email,omitempty"`
	Role           string `json:"role"`
	OrganizationID string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without verifying its signature.
// PRE: token is a JWT
// POST: Returns the claims or ErrMalformedToken
func ParseClaims(token string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, ErrMalformedToken
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	return c, nil
}

// Expiry returns the token expiry or the zero time if it has none.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Session is an authenticated portal session, keyed by the cookie token.
type Session struct {
	Token           string
	UserID          string
	Email           string
	FirstName       string
	LastName        string
	Role            rbac.Role
	OrganizationID  string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	CreatedAt       time.Time
}

// Validate checks if the Session has valid data.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Session) Validate() error {
	if s.Token == "" {
		return ErrEmptyToken
	}
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUser
	}
	if s.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	if _, err := rbac.ParseRole(string(s.Role)); err != nil {
		return err
	}
	return nil
}

// Expired reports whether the session is older than MaxAge.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > MaxAge
}

// NeedsRefresh reports whether the access token expires within RefreshLeeway.
// A token without a known expiry is refreshed only when the server rejects it.
func (s Session) NeedsRefresh(now time.Time) bool {
	if s.AccessExpiresAt.IsZero() || s.RefreshToken == "" {
		return false
	}
	return !now.Add(RefreshLeeway).Before(s.AccessExpiresAt)
}

// WithTokens returns a copy carrying new tokens and the expiry read from access.
func (s Session) WithTokens(access, refresh string) Session {
	s.AccessToken = access
	if refresh != "" {
		s.RefreshToken = refresh
	}
	s.AccessExpiresAt = time.Time{}
	if c, err := ParseClaims(access); err == nil {
		s.AccessExpiresAt = c.Expiry()
	}
	return s
}

// RBAC returns the permission context for the session.
func (s Session) RBAC() rbac.Context {
	return rbac.Context{Role: s.Role}
}

// DisplayName returns the first and last name, or the email when both are empty.
func (s Session) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return s.Email
	}
	return name
}
