package projections

import (
	"strings"

	"coachhub/internal/adapters/api"
	"coachhub/internal/domain/authsession"
	"coachhub/internal/domain/rbac"
)

// Principal is the signed-in user a query runs for.
type Principal struct {
	UserID         string
	Role           rbac.Role
	OrganizationID string
}

// PrincipalOf returns the principal of an auth session.
func PrincipalOf(s authsession.Session) Principal {
	return Principal{UserID: s.UserID, Role: s.Role, OrganizationID: s.OrganizationID}
}

// RBAC returns the permission context of p.
func (p Principal) RBAC() rbac.Context {
	return rbac.Context{Role: p.Role}
}

// ScopeParams are the server-side filters implied by a role.
// Scoping narrows what is fetched; the server still enforces access.
type ScopeParams struct {
	Role           rbac.Role
	OrganizationID string
	CoachID        string
	EntrepreneurID string
}

// Scope returns the filters for p.
// INVARIANT: admin is unscoped; manager by organization; coach by organization
// and coachId; entrepreneur by organization and entrepreneurId
func Scope(p Principal) ScopeParams {
	s := ScopeParams{Role: p.Role}
	switch p.Role {
	case rbac.RoleAdmin:
	case rbac.RoleManager:
		s.OrganizationID = p.OrganizationID
	case rbac.RoleCoach:
		s.OrganizationID = p.OrganizationID
		s.CoachID = p.UserID
	default:
		// entrepreneur, and the narrowest scope for anything unrecognised
		s.OrganizationID = p.OrganizationID
		s.EntrepreneurID = p.UserID
	}
	return s
}

// Apply copies the scope filters onto q. Scope wins over caller filters.
func (s ScopeParams) Apply(q api.ListQuery) api.ListQuery {
	if s.OrganizationID != "" {
		q.OrganizationID = s.OrganizationID
	}
	if s.CoachID != "" {
		q.CoachID = s.CoachID
	}
	if s.EntrepreneurID != "" {
		q.EntrepreneurID = s.EntrepreneurID
	}
	return q
}

// String is the cache key component for s.
func (s ScopeParams) String() string {
	parts := []string{"role=" + string(s.Role)}
	if s.OrganizationID != "" {
		parts = append(parts, "org="+s.OrganizationID)
	}
	if s.CoachID != "" {
		parts = append(parts, "coach="+s.CoachID)
	}
	if s.EntrepreneurID != "" {
		parts = append(parts, "entrepreneur="+s.EntrepreneurID)
	}
	return strings.Join(parts, ";")
}
