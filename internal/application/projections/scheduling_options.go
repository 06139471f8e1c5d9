package projections

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/listutil"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/rbac"
	domainUser "coachhub/internal/domain/user"
)

// optionsLimit bounds the users offered in one wizard step.
const optionsLimit = 100

// SchedulingOptionsQuery carries query parameters.
type SchedulingOptionsQuery struct {
	Principal Principal
	Search    string
}

// SchedulingOptionsResult lists the active coaches and entrepreneurs the
// principal may pick in the scheduling wizard, ordered by name.
type SchedulingOptionsResult struct {
	Coaches       []domainUser.Summary
	Entrepreneurs []domainUser.Summary
}

// QuerySchedulingOptions fetches the people offered by the wizard's first two
// steps. A coach is only ever offered themselves.
// PRE: query.Principal is authenticated
// POST: Inactive users are excluded
func QuerySchedulingOptions(ctx context.Context, query SchedulingOptionsQuery, deps Deps) (SchedulingOptionsResult, error) {
	var result SchedulingOptionsResult
	var err error
	result.Coaches, err = activeUsers(ctx, query, rbac.RoleCoach, deps)
	if err != nil {
		return SchedulingOptionsResult{}, err
	}
	result.Entrepreneurs, err = activeUsers(ctx, query, rbac.RoleEntrepreneur, deps)
	if err != nil {
		return SchedulingOptionsResult{}, err
	}
	if query.Principal.Role == rbac.RoleCoach {
		result.Coaches = slices.DeleteFunc(result.Coaches, func(s domainUser.Summary) bool {
			return s.ID != query.Principal.UserID
		})
	}
	return result, nil
}

func activeUsers(ctx context.Context, query SchedulingOptionsQuery, role rbac.Role, deps Deps) ([]domainUser.Summary, error) {
	active := true
	q := api.ListQuery{Role: string(role), Active: &active, Search: query.Search, Limit: optionsLimit}
	// Users are listed at organization scope even for coaches; the coach
	// filter applies to sessions, not to people.
	p := query.Principal
	if p.Role == rbac.RoleCoach {
		p.Role = rbac.RoleManager
	}
	fetched, err := cachedList(ctx, deps, querycache.ResourceUsers, p, q, deps.API.ListUsers)
	if err != nil {
		return nil, err
	}
	var out []domainUser.Summary
	for i := range fetched.Items {
		u := &fetched.Items[i]
		if u.Role != role || !u.IsActive {
			continue
		}
		out = append(out, u.Summary())
	}
	out = listutil.Search(out, query.Search, func(s domainUser.Summary) string {
		return s.FullName() + " " + s.Email + " " + s.StartupName
	})
	slices.SortStableFunc(out, func(a, b domainUser.Summary) int {
		return cmp.Compare(strings.ToLower(a.FullName()), strings.ToLower(b.FullName()))
	})
	return out, nil
}
