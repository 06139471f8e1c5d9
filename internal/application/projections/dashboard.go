package projections

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	domainGoal "coachhub/internal/domain/goal"
	domainOrganization "coachhub/internal/domain/organization"
	domainPayment "coachhub/internal/domain/payment"
	"coachhub/internal/domain/rbac"
	domainSession "coachhub/internal/domain/session"
	domainUser "coachhub/internal/domain/user"
)

// dashboardUpcoming is how many upcoming sessions the dashboard lists.
const dashboardUpcoming = 5

// dashboardHorizon is how far ahead the dashboard looks for sessions.
const dashboardHorizon = 14 * 24 * time.Hour

// DashboardQuery carries query parameters.
type DashboardQuery struct {
	Principal Principal
	Now       time.Time
	Location  *time.Location
}

// GoalSummary aggregates the goals a principal can see.
type GoalSummary struct {
	Total           int
	Active          int
	Completed       int
	AverageProgress int
	Overdue         []domainGoal.Goal
}

// DashboardResult carries the output of the dashboard projection. Sections
// the role may not view are left empty.
type DashboardResult struct {
	Role         rbac.Role
	Organization *domainOrganization.Organization

	// Sessions
	TodayCount int
	Upcoming   []domainSession.Session

	// Goals
	Goals *GoalSummary

	// Payments
	PaymentTotals []domainPayment.Totals
	OverdueCount  int

	// Users
	UserCounts map[rbac.Role]int
	Inactive   int

	// Failed lists sections that could not be loaded.
	Failed []string
}

// QueryDashboard aggregates dashboard sections based on the principal's role.
// Sections load concurrently; a failing section is reported in Failed unless
// the failure is an authentication error, which aborts the whole dashboard.
// PRE: query.Principal is authenticated
// POST: Only sections permitted by the RBAC matrix are populated
func QueryDashboard(ctx context.Context, query DashboardQuery, deps Deps) (DashboardResult, error) {
	rc := query.Principal.RBAC()
	result := DashboardResult{Role: query.Principal.Role}
	var failed [4]string

	g, gctx := errgroup.WithContext(ctx)
	section := func(i int, name string, load func(context.Context) error) {
		g.Go(func() error {
			err := load(gctx)
			if err == nil {
				return nil
			}
			if api.IsKind(err, api.KindAuthentication) {
				return err
			}
			log.Warn().Err(err).Str("section", name).Str("role", string(query.Principal.Role)).Msg("dashboard_section_failed")
			failed[i] = name
			return nil
		})
	}

	if rbac.Can(rc, rbac.ActionView, rbac.SubjectSessions) {
		section(0, "sessions", func(ctx context.Context) error {
			fetched, err := cachedList(ctx, deps, querycache.ResourceSessions, query.Principal, api.ListQuery{
				From:  query.Now,
				To:    query.Now.Add(dashboardHorizon),
				Limit: calendarLimit,
			}, deps.API.ListSessions)
			if err != nil {
				return err
			}
			loc := query.Location
			if loc == nil {
				loc = time.UTC
			}
			today := query.Now.In(loc)
			var upcoming []domainSession.Session
			for _, s := range fetched.Items {
				if s.OccursOn(today) {
					result.TodayCount++
				}
				if s.IsUpcoming(query.Now) {
					upcoming = append(upcoming, s)
				}
			}
			sortByStart(upcoming)
			if len(upcoming) > dashboardUpcoming {
				upcoming = upcoming[:dashboardUpcoming]
			}
			result.Upcoming = upcoming
			return nil
		})
	}

	if rbac.Can(rc, rbac.ActionView, rbac.SubjectGoals) {
		section(1, "goals", func(ctx context.Context) error {
			fetched, err := cachedList(ctx, deps, querycache.ResourceGoals, query.Principal, api.ListQuery{}, deps.API.ListGoals)
			if err != nil {
				return err
			}
			result.Goals = summarizeGoals(fetched.Items, query.Now)
			return nil
		})
	}

	if rbac.Can(rc, rbac.ActionView, rbac.SubjectPayments) {
		section(2, "payments", func(ctx context.Context) error {
			fetched, err := cachedList(ctx, deps, querycache.ResourcePayments, query.Principal, api.ListQuery{}, deps.API.ListPayments)
			if err != nil {
				return err
			}
			result.PaymentTotals = domainPayment.Summarize(fetched.Items, query.Now)
			for _, p := range fetched.Items {
				if p.IsOverdue(query.Now) {
					result.OverdueCount++
				}
			}
			return nil
		})
	}

	if rbac.Can(rc, rbac.ActionView, rbac.SubjectUsers) {
		section(3, "users", func(ctx context.Context) error {
			fetched, err := cachedList(ctx, deps, querycache.ResourceUsers, query.Principal, api.ListQuery{}, deps.API.ListUsers)
			if err != nil {
				return err
			}
			result.UserCounts, result.Inactive = countUsers(fetched.Items)
			return nil
		})
	}

	if query.Principal.OrganizationID != "" && rbac.Can(rc, rbac.ActionView, rbac.SubjectOrgSettings) {
		g.Go(func() error {
			org, err := QueryOrganization(gctx, OrganizationQuery{ID: query.Principal.OrganizationID}, deps)
			if err != nil {
				if api.IsKind(err, api.KindAuthentication) {
					return err
				}
				log.Warn().Err(err).Str("organization_id", query.Principal.OrganizationID).Msg("dashboard_organization_failed")
				return nil
			}
			result.Organization = &org
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return DashboardResult{}, err
	}
	for _, name := range failed {
		if name != "" {
			result.Failed = append(result.Failed, name)
		}
	}
	return result, nil
}

func summarizeGoals(goals []domainGoal.Goal, now time.Time) *GoalSummary {
	s := &GoalSummary{Total: len(goals)}
	sum := 0
	for i := range goals {
		g := &goals[i]
		sum += g.EffectiveProgress()
		switch g.Status {
		case domainGoal.StatusCompleted:
			s.Completed++
		case domainGoal.StatusInProgress, domainGoal.StatusNotStarted:
			s.Active++
		}
		if g.IsOverdue(now) {
			s.Overdue = append(s.Overdue, *g)
		}
	}
	if len(goals) > 0 {
		s.AverageProgress = sum / len(goals)
	}
	slices.SortStableFunc(s.Overdue, func(a, b domainGoal.Goal) int {
		return optTimeCmp(a.TargetDate, b.TargetDate)
	})
	return s
}

func countUsers(users []domainUser.User) (map[rbac.Role]int, int) {
	counts := make(map[rbac.Role]int)
	inactive := 0
	for _, u := range users {
		counts[u.Role]++
		if !u.IsActive {
			inactive++
		}
	}
	return counts, inactive
}

// OrganizationQuery carries query parameters.
type OrganizationQuery struct {
	ID string
}

// QueryOrganization fetches an organization through the cache.
// PRE: query.ID is non-empty
func QueryOrganization(ctx context.Context, query OrganizationQuery, deps Deps) (domainOrganization.Organization, error) {
	fetch := func(ctx context.Context) (domainOrganization.Organization, error) {
		return deps.API.GetOrganization(ctx, query.ID)
	}
	if deps.Cache == nil {
		return fetch(ctx)
	}
	key := querycache.Key{Resource: querycache.ResourceOrganization, Scope: "org=" + query.ID}
	return querycache.Get(ctx, deps.Cache, key, fetch)
}
