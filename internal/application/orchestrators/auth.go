package orchestrators

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"coachhub/internal/adapters/api"
	"coachhub/internal/domain/authsession"
	"coachhub/internal/domain/rbac"
)

// Authenticator exchanges credentials and refresh tokens. *api.Backend implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (api.AuthResult, error)
}

// AuthSessionStore defines the store interface needed by the auth orchestrators.
type AuthSessionStore interface {
	Get(ctx context.Context, token string) (authsession.Session, error)
	Save(ctx context.Context, s authsession.Session) error
	Delete(ctx context.Context, token string) error
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoRefreshToken     = errors.New("session has no refresh token")
)

var _ Authenticator = (*api.Backend)(nil)

// NewSessionToken returns a random 32-byte hex cookie token.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Auth          Authenticator
	Store         AuthSessionStore
	Now           func() time.Time
	GenerateToken func() (string, error)
}

// ExecuteLogin exchanges credentials for API tokens and stores a new session.
// PRE: Valid email and password provided
// POST: Returns the stored session; its Token is the cookie value
// INVARIANT: Rejected credentials never create a session
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (authsession.Session, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" {
		return authsession.Session{}, ErrInvalidCredentials
	}

	res, err := deps.Auth.Login(ctx, email, input.Password)
	if err != nil {
		kind := api.KindOf(err)
		log.Info().Str("email", email).Str("kind", string(kind)).Msg("login_failed")
		if kind == api.KindAuthentication || kind == api.KindValidation {
			return authsession.Session{}, ErrInvalidCredentials
		}
		return authsession.Session{}, err
	}

	generate := deps.GenerateToken
	if generate == nil {
		generate = NewSessionToken
	}
	token, err := generate()
	if err != nil {
		return authsession.Session{}, err
	}

	s := sessionFromAuth(res, deps.Now())
	s.Token = token
	if s.Email == "" {
		s.Email = email
	}
	if err := s.Validate(); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("login_rejected_profile")
		return authsession.Session{}, err
	}
	if err := deps.Store.Save(ctx, s); err != nil {
		return authsession.Session{}, err
	}

	log.Info().Str("user_id", s.UserID).Str("role", string(s.Role)).Msg("login_success")
	return s, nil
}

// sessionFromAuth builds a session from the login profile, filling gaps from
// the access token claims.
func sessionFromAuth(res api.AuthResult, now time.Time) authsession.Session {
	u := res.User
	s := authsession.Session{
		UserID:         u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		CreatedAt:      now,
	}
	s = s.WithTokens(res.Access(), res.RefreshToken)
	if c, err := authsession.ParseClaims(s.AccessToken); err == nil {
		if s.UserID == "" {
			s.UserID = c.UserID
		}
		if s.Email == "" {
			s.Email = c.Email
		}
		if s.Role == "" {
			s.Role = rbac.Role(c.Role)
		}
		if s.OrganizationID == "" {
			s.OrganizationID = c.OrganizationID
		}
	}
	return s
}

// Logouter revokes tokens server-side. *api.Client implements it.
type Logouter interface {
	Logout(ctx context.Context) error
}

// DraftCloser discards the drafts opened under a session token.
type DraftCloser interface {
	CloseOwner(owner string) int
}

// LogoutInput carries input for the logout orchestrator.
type LogoutInput struct {
	Token string
}

// LogoutDeps holds dependencies for Logout. API and Drafts may be nil.
type LogoutDeps struct {
	Store  AuthSessionStore
	API    Logouter
	Drafts DraftCloser
}

// ExecuteLogout ends a session. The remote revoke is best effort.
// POST: The session is gone from the store and its drafts are closed
func ExecuteLogout(ctx context.Context, input LogoutInput, deps LogoutDeps) error {
	if input.Token == "" {
		return nil
	}
	s, err := deps.Store.Get(ctx, input.Token)
	if err != nil && !errors.Is(err, authsession.ErrNotFound) {
		return err
	}
	if deps.API != nil && err == nil {
		if rerr := deps.API.Logout(ctx); rerr != nil {
			log.Info().Err(rerr).Str("user_id", s.UserID).Msg("remote_logout_failed")
		}
	}
	if err := deps.Store.Delete(ctx, input.Token); err != nil {
		return err
	}
	if deps.Drafts != nil {
		deps.Drafts.CloseOwner(input.Token)
	}
	log.Info().Str("user_id", s.UserID).Msg("logout")
	return nil
}

// RefreshDeps holds dependencies for Refresh.
type RefreshDeps struct {
	Auth  Authenticator
	Store AuthSessionStore
}

// ExecuteRefresh exchanges the session's refresh token for a new token pair.
// PRE: the session exists
// POST: The stored session carries the new tokens; a rejected refresh token
// deletes the session
func ExecuteRefresh(ctx context.Context, token string, deps RefreshDeps) (authsession.Session, error) {
	s, err := deps.Store.Get(ctx, token)
	if err != nil {
		return authsession.Session{}, &api.Error{Kind: api.KindAuthentication, Op: "refresh", Message: "Your session has expired.", Err: err}
	}
	if s.RefreshToken == "" {
		return authsession.Session{}, &api.Error{Kind: api.KindAuthentication, Op: "refresh", Message: "Your session has expired.", Err: ErrNoRefreshToken}
	}

	res, err := deps.Auth.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if api.IsKind(err, api.KindAuthentication) {
			if derr := deps.Store.Delete(ctx, token); derr != nil {
				log.Warn().Err(derr).Str("user_id", s.UserID).Msg("expired_session_delete_failed")
			}
			log.Info().Str("user_id", s.UserID).Msg("refresh_rejected")
		}
		return authsession.Session{}, err
	}
	s = s.WithTokens(res.Access(), res.RefreshToken)
	if err := deps.Store.Save(ctx, s); err != nil {
		return authsession.Session{}, err
	}
	log.Debug().Str("user_id", s.UserID).Time("access_expires_at", s.AccessExpiresAt).Msg("token_refreshed")
	return s, nil
}

// SessionTokens hands out API tokens for stored sessions, refreshing them
// shortly before they expire. Concurrent refreshes of one session share a
// single call.
type SessionTokens struct {
	deps  RefreshDeps
	now   func() time.Time
	group singleflight.Group
}

// NewSessionTokens creates a SessionTokens. now may be nil.
func NewSessionTokens(deps RefreshDeps, now func() time.Time) *SessionTokens {
	if now == nil {
		now = time.Now
	}
	return &SessionTokens{deps: deps, now: now}
}

// For returns the api.TokenSource of the session with cookie token.
func (t *SessionTokens) For(token string) api.TokenSource {
	return sessionTokenSource{tokens: t, token: token}
}

func (t *SessionTokens) refresh(ctx context.Context, token string) (string, error) {
	v, err, _ := t.group.Do(token, func() (any, error) {
		s, err := ExecuteRefresh(context.WithoutCancel(ctx), token, t.deps)
		if err != nil {
			return "", err
		}
		return s.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type sessionTokenSource struct {
	tokens *SessionTokens
	token  string
}

// AccessToken returns the session's access token, refreshing it first when
// it is about to expire.
func (s sessionTokenSource) AccessToken(ctx context.Context) (string, error) {
	sess, err := s.tokens.deps.Store.Get(ctx, s.token)
	if err != nil {
		return "", api.ErrNoToken
	}
	if sess.NeedsRefresh(s.tokens.now()) {
		access, err := s.tokens.refresh(ctx, s.token)
		if err == nil {
			return access, nil
		}
		log.Debug().Err(err).Str("user_id", sess.UserID).Msg("proactive_refresh_failed")
	}
	return sess.AccessToken, nil
}

// Refresh exchanges the refresh token after the server rejected the access token.
func (s sessionTokenSource) Refresh(ctx context.Context) (string, error) {
	return s.tokens.refresh(ctx, s.token)
}
