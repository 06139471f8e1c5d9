package projections

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/listutil"
	"coachhub/internal/application/querycache"
	domainGoal "coachhub/internal/domain/goal"
	domainPayment "coachhub/internal/domain/payment"
	domainSession "coachhub/internal/domain/session"
	domainUser "coachhub/internal/domain/user"
)

// Sort columns and filter keys accepted by each list.
var (
	SessionSortColumns = []string{"scheduledAt", "status", "duration"}
	SessionFilterKeys  = []string{"status", "coachId", "entrepreneurId"}
	GoalSortColumns    = []string{"title", "progress", "targetDate", "priority"}
	GoalFilterKeys     = []string{"status", "entrepreneurId"}
	PaymentSortColumns = []string{"dueDate", "amount", "status"}
	PaymentFilterKeys  = []string{"status", "coachId"}
	UserSortColumns    = []string{"name", "email", "role"}
	UserFilterKeys     = []string{"role", "active"}
)

// ListResult is one rendered page of a list.
type ListResult[T any] struct {
	Items  []T
	Page   listutil.PageInfo
	Params listutil.ListParams
}

// cachedList applies the principal's scope and reads through the cache.
func cachedList[T any](ctx context.Context, deps Deps, resource string, p Principal, q api.ListQuery, fetch func(context.Context, api.ListQuery) (api.Page[T], error)) (api.Page[T], error) {
	scope := Scope(p)
	q = scope.Apply(q)
	if deps.Cache == nil {
		return fetch(ctx, q)
	}
	key := querycache.Key{Resource: resource, Scope: scope.String(), Filters: q.Values().Encode()}
	return querycache.Get(ctx, deps.Cache, key, func(ctx context.Context) (api.Page[T], error) {
		return fetch(ctx, q)
	})
}

// pageOf turns a fetched page into a ListResult. Unpaged responses are
// searched, sorted and sliced locally. Cached items are never modified.
func pageOf[T any](fetched api.Page[T], lp listutil.ListParams, text func(T) string, columns map[string]func(a, b T) int) ListResult[T] {
	items := slices.Clone(fetched.Items)
	if fetched.Paged {
		listutil.SortBy(items, lp.SortParams, columns)
		return ListResult[T]{
			Items:  items,
			Page:   listutil.NewPageInfo(max(fetched.Meta.Page, 1), lp.Limit, fetched.Meta.Total),
			Params: lp,
		}
	}
	items = listutil.Search(items, lp.Search, text)
	listutil.SortBy(items, lp.SortParams, columns)
	pageItems, info := listutil.Paginate(items, lp.PageParams)
	return ListResult[T]{Items: pageItems, Page: info, Params: lp}
}

func listQuery(lp listutil.ListParams) api.ListQuery {
	return api.ListQuery{
		Status: lp.Filters["status"],
		Search: lp.Search,
		Page:   lp.Page,
		Limit:  lp.Limit,
	}
}

func timeCmp(a, b time.Time) int {
	return a.Compare(b)
}

func optTimeCmp(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// SessionListQuery carries query parameters.
type SessionListQuery struct {
	Principal Principal
	List      listutil.ListParams
	From      time.Time
	To        time.Time
}

var sessionColumns = map[string]func(a, b domainSession.Session) int{
	"scheduledAt": func(a, b domainSession.Session) int { return timeCmp(a.ScheduledAt, b.ScheduledAt) },
	"status":      func(a, b domainSession.Session) int { return cmp.Compare(a.Status, b.Status) },
	"duration":    func(a, b domainSession.Session) int { return cmp.Compare(a.DurationMinutes(), b.DurationMinutes()) },
}

// QuerySessionList retrieves one page of sessions visible to the principal.
// PRE: query.Principal is authenticated
// POST: Sessions are scoped by role; results may come from the cache
func QuerySessionList(ctx context.Context, query SessionListQuery, deps Deps) (ListResult[domainSession.Session], error) {
	q := listQuery(query.List)
	q.CoachID = query.List.Filters["coachId"]
	q.EntrepreneurID = query.List.Filters["entrepreneurId"]
	q.From, q.To = query.From, query.To
	fetched, err := cachedList(ctx, deps, querycache.ResourceSessions, query.Principal, q, deps.API.ListSessions)
	if err != nil {
		return ListResult[domainSession.Session]{}, err
	}
	return pageOf(fetched, query.List, func(s domainSession.Session) string {
		return s.EntrepreneurName() + " " + s.Description + " " + s.Location
	}, sessionColumns), nil
}

// GoalListQuery carries query parameters.
type GoalListQuery struct {
	Principal Principal
	List      listutil.ListParams
}

var priorityRank = map[string]int{
	domainGoal.PriorityLow:      0,
	domainGoal.PriorityMedium:   1,
	domainGoal.PriorityHigh:     2,
	domainGoal.PriorityCritical: 3,
}

var goalColumns = map[string]func(a, b domainGoal.Goal) int{
	"title":      func(a, b domainGoal.Goal) int { return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) },
	"progress":   func(a, b domainGoal.Goal) int { return cmp.Compare(a.EffectiveProgress(), b.EffectiveProgress()) },
	"targetDate": func(a, b domainGoal.Goal) int { return optTimeCmp(a.TargetDate, b.TargetDate) },
	"priority":   func(a, b domainGoal.Goal) int { return cmp.Compare(priorityRank[a.Priority], priorityRank[b.Priority]) },
}

// QueryGoalList retrieves one page of goals visible to the principal.
// PRE: query.Principal is authenticated
// POST: Goals are scoped by role
func QueryGoalList(ctx context.Context, query GoalListQuery, deps Deps) (ListResult[domainGoal.Goal], error) {
	q := listQuery(query.List)
	q.EntrepreneurID = query.List.Filters["entrepreneurId"]
	fetched, err := cachedList(ctx, deps, querycache.ResourceGoals, query.Principal, q, deps.API.ListGoals)
	if err != nil {
		return ListResult[domainGoal.Goal]{}, err
	}
	return pageOf(fetched, query.List, func(g domainGoal.Goal) string {
		return g.Title + " " + g.Description
	}, goalColumns), nil
}

// PaymentListQuery carries query parameters.
type PaymentListQuery struct {
	Principal Principal
	List      listutil.ListParams
	Now       time.Time
}

// PaymentListResult adds per-currency totals to a page of payments.
type PaymentListResult struct {
	ListResult[domainPayment.Payment]
	Totals []domainPayment.Totals
}

var paymentColumns = map[string]func(a, b domainPayment.Payment) int{
	"dueDate": func(a, b domainPayment.Payment) int { return optTimeCmp(a.DueDate, b.DueDate) },
	"amount":  func(a, b domainPayment.Payment) int { return cmp.Compare(a.Amount, b.Amount) },
	"status":  func(a, b domainPayment.Payment) int { return cmp.Compare(a.Status, b.Status) },
}

// QueryPaymentList retrieves one page of payments and the totals of the page.
// PRE: query.Principal is authenticated
// POST: Payments are scoped by role
func QueryPaymentList(ctx context.Context, query PaymentListQuery, deps Deps) (PaymentListResult, error) {
	q := listQuery(query.List)
	q.CoachID = query.List.Filters["coachId"]
	fetched, err := cachedList(ctx, deps, querycache.ResourcePayments, query.Principal, q, deps.API.ListPayments)
	if err != nil {
		return PaymentListResult{}, err
	}
	page := pageOf(fetched, query.List, func(p domainPayment.Payment) string {
		return p.InvoiceNumber + " " + p.Currency + " " + p.Status
	}, paymentColumns)
	return PaymentListResult{ListResult: page, Totals: domainPayment.Summarize(page.Items, query.Now)}, nil
}

// UserListQuery carries query parameters.
type UserListQuery struct {
	Principal Principal
	List      listutil.ListParams
}

var userColumns = map[string]func(a, b domainUser.User) int{
	"name":  func(a, b domainUser.User) int { return cmp.Compare(strings.ToLower(a.FullName()), strings.ToLower(b.FullName())) },
	"email": func(a, b domainUser.User) int { return cmp.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email)) },
	"role":  func(a, b domainUser.User) int { return cmp.Compare(a.Role, b.Role) },
}

// QueryUserList retrieves one page of users visible to the principal.
// PRE: query.Principal is authenticated
// POST: Users are scoped by role
func QueryUserList(ctx context.Context, query UserListQuery, deps Deps) (ListResult[domainUser.User], error) {
	q := listQuery(query.List)
	q.Role = query.List.Filters["role"]
	switch query.List.Filters["active"] {
	case "true":
		active := true
		q.Active = &active
	case "false":
		inactive := false
		q.Active = &inactive
	}
	fetched, err := cachedList(ctx, deps, querycache.ResourceUsers, query.Principal, q, deps.API.ListUsers)
	if err != nil {
		return ListResult[domainUser.User]{}, err
	}
	return pageOf(fetched, query.List, func(u domainUser.User) string {
		return u.FullName() + " " + u.Email + " " + u.StartupName
	}, userColumns), nil
}
