package orchestrators

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/rbac"
	"coachhub/internal/domain/user"
)

// ErrDeactivateSelf is returned when a user tries to deactivate their own account.
var ErrDeactivateSelf = errors.New("you cannot deactivate your own account")

// UserActiveAPI defines the API interface needed by ToggleUserActive.
type UserActiveAPI interface {
	SetUserActive(ctx context.Context, id string, active bool) (user.User, error)
}

// ToggleUserActiveInput carries input for the toggle user active orchestrator.
type ToggleUserActiveInput struct {
	Actor   rbac.Context
	ActorID string
	UserID  string
	Active  bool
}

// ToggleUserActiveDeps holds dependencies for ToggleUserActive. Cache may be nil.
type ToggleUserActiveDeps struct {
	API   UserActiveAPI
	Cache *querycache.Cache
}

// ExecuteToggleUserActive activates or deactivates a user. Cached user lists
// show the new state while the request is in flight.
// POST: On success the users cache is invalidated; on failure cached lists are
// restored to their state before the call
func ExecuteToggleUserActive(ctx context.Context, input ToggleUserActiveInput, deps ToggleUserActiveDeps) (user.User, error) {
	if !rbac.Can(input.Actor, rbac.ActionManage, rbac.SubjectUsers) {
		return user.User{}, ErrForbidden
	}
	if !input.Active && input.UserID == input.ActorID {
		return user.User{}, ErrDeactivateSelf
	}

	var change *querycache.Optimistic
	if deps.Cache != nil {
		change = deps.Cache.Snapshot(querycache.ResourceUsers)
		querycache.Apply(change, func(p api.Page[user.User]) api.Page[user.User] {
			i := slices.IndexFunc(p.Items, func(u user.User) bool { return u.ID == input.UserID })
			if i < 0 {
				return p
			}
			p.Items = slices.Clone(p.Items)
			p.Items[i].IsActive = input.Active
			return p
		})
	}

	updated, err := deps.API.SetUserActive(ctx, input.UserID, input.Active)
	if err != nil {
		if change != nil {
			change.Rollback()
		}
		log.Info().Err(err).Str("user_id", input.UserID).Bool("active", input.Active).Msg("user_active_toggle_failed")
		return user.User{}, err
	}
	if change != nil {
		change.Commit()
	}
	log.Info().Str("user_id", input.UserID).Bool("active", updated.IsActive).Msg("user_active_toggled")
	return updated, nil
}
