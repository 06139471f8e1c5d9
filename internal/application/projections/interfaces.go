package projections

import (
	"context"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	domainGoal "coachhub/internal/domain/goal"
	domainOrganization "coachhub/internal/domain/organization"
	domainPayment "coachhub/internal/domain/payment"
	domainSession "coachhub/internal/domain/session"
	domainUser "coachhub/internal/domain/user"
)

// SessionReader lists sessions from the remote API.
type SessionReader interface {
	ListSessions(ctx context.Context, q api.ListQuery) (api.Page[domainSession.Session], error)
}

// GoalReader lists goals from the remote API.
type GoalReader interface {
	ListGoals(ctx context.Context, q api.ListQuery) (api.Page[domainGoal.Goal], error)
}

// PaymentReader lists payments from the remote API.
type PaymentReader interface {
	ListPayments(ctx context.Context, q api.ListQuery) (api.Page[domainPayment.Payment], error)
}

// UserReader lists users from the remote API.
type UserReader interface {
	ListUsers(ctx context.Context, q api.ListQuery) (api.Page[domainUser.User], error)
}

// OrganizationReader fetches an organization from the remote API.
type OrganizationReader interface {
	GetOrganization(ctx context.Context, id string) (domainOrganization.Organization, error)
}

// Reader is everything projections read. *api.Client satisfies it.
type Reader interface {
	SessionReader
	GoalReader
	PaymentReader
	UserReader
	OrganizationReader
}

var _ Reader = (*api.Client)(nil)

// Deps holds dependencies shared by every projection.
type Deps struct {
	API   Reader
	Cache *querycache.Cache
}
