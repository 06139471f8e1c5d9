package orchestrators

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/rbac"
	"coachhub/internal/domain/session"
)

// ErrForbidden is returned when the signed-in role may not perform an action.
var ErrForbidden = errors.New("you do not have permission to do that")

// SessionStatusAPI defines the API interface needed by UpdateSessionStatus.
type SessionStatusAPI interface {
	GetSession(ctx context.Context, id string) (session.Session, error)
	UpdateSessionStatus(ctx context.Context, id, status string) (session.Session, error)
}

// UpdateSessionStatusInput carries input for the update session status orchestrator.
type UpdateSessionStatusInput struct {
	Actor     rbac.Context
	SessionID string
	Status    string
}

// UpdateSessionStatusDeps holds dependencies for UpdateSessionStatus.
type UpdateSessionStatusDeps struct {
	API   SessionStatusAPI
	Cache Invalidator
}

// ExecuteUpdateSessionStatus moves a session to a new status.
// PRE: input.Status is a valid session status
// POST: On success the sessions cache is invalidated
// INVARIANT: Final statuses are never changed
func ExecuteUpdateSessionStatus(ctx context.Context, input UpdateSessionStatusInput, deps UpdateSessionStatusDeps) (session.Session, error) {
	if !rbac.Can(input.Actor, rbac.ActionEdit, rbac.SubjectSessions) {
		return session.Session{}, ErrForbidden
	}
	if !session.IsValidStatus(input.Status) {
		return session.Session{}, session.ErrInvalidStatus
	}
	current, err := deps.API.GetSession(ctx, input.SessionID)
	if err != nil {
		return session.Session{}, err
	}
	if current.Status == input.Status {
		return current, nil
	}
	if !current.CanTransition(input.Status) {
		return session.Session{}, session.ErrInvalidTransition
	}

	updated, err := deps.API.UpdateSessionStatus(ctx, input.SessionID, input.Status)
	if err != nil {
		return session.Session{}, err
	}
	deps.Cache.Invalidate(querycache.ResourceSessions)
	log.Info().
		Str("session_id", input.SessionID).
		Str("from", current.Status).
		Str("to", updated.Status).
		Msg("session_status_updated")
	return updated, nil
}
