package authsession

import (
	"context"
	"time"

	domain "coachhub/internal/domain/authsession"
)

// ErrNotFound is returned for unknown and expired sessions.
var ErrNotFound = domain.ErrNotFound

// Store persists signed-in browser sessions and the API tokens they carry.
type Store interface {
	// Get returns the session for token. Expired sessions are not returned.
	Get(ctx context.Context, token string) (domain.Session, error)
	Save(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
