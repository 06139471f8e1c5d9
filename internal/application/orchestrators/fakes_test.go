package orchestrators

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/domain/goal"
	"coachhub/internal/domain/organization"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
	"coachhub/internal/domain/user"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

// fakeAPI is an in-memory remote API.
type fakeAPI struct {
	mu       sync.Mutex
	sessions []session.Session
	goals    map[string]goal.Goal
	payments map[string]payment.Payment
	users    map[string]user.User
	org      organization.Organization
	errs     map[string]error
	calls    map[string]int
	paidAt   time.Time
	nextID   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		goals:    map[string]goal.Goal{},
		payments: map[string]payment.Payment{},
		users:    map[string]user.User{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

// call records op and returns its seeded error.
// PRE: m.mu is held
func (m *fakeAPI) call(op string) error {
	m.calls[op]++
	return m.errs[op]
}

func (m *fakeAPI) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *fakeAPI) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// ListSessions implements projections.SessionReader.
// PRE: none
// POST: Returns every stored session of q.CoachID, or all when empty
func (m *fakeAPI) ListSessions(_ context.Context, q api.ListQuery) (api.Page[session.Session], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListSessions"); err != nil {
		return api.Page[session.Session]{}, err
	}
	var out []session.Session
	for _, s := range m.sessions {
		if q.CoachID == "" || s.CoachID.ID() == q.CoachID {
			out = append(out, s)
		}
	}
	return api.Page[session.Session]{Items: out}, nil
}

func (m *fakeAPI) ListGoals(context.Context, api.ListQuery) (api.Page[goal.Goal], error) {
	return api.Page[goal.Goal]{}, nil
}

// ListPayments returns every stored payment sorted by ID.
func (m *fakeAPI) ListPayments(_ context.Context, _ api.ListQuery) (api.Page[payment.Payment], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListPayments"); err != nil {
		return api.Page[payment.Payment]{}, err
	}
	var out []payment.Payment
	for _, p := range m.payments {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b payment.Payment) int { return strings.Compare(a.ID, b.ID) })
	return api.Page[payment.Payment]{Items: out}, nil
}

// ListUsers returns every stored user sorted by ID.
func (m *fakeAPI) ListUsers(_ context.Context, _ api.ListQuery) (api.Page[user.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ListUsers")
	var out []user.User
	for _, u := range m.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b user.User) int { return strings.Compare(a.ID, b.ID) })
	return api.Page[user.User]{Items: out}, nil
}

func (m *fakeAPI) GetOrganization(_ context.Context, id string) (organization.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetOrganization"); err != nil {
		return organization.Organization{}, err
	}
	return m.org, nil
}

// CreateSession stores a session unless it overlaps one of the same coach.
// PRE: in is a complete create request
// POST: Returns a conflict *api.Error on overlap
func (m *fakeAPI) CreateSession(_ context.Context, in scheduling.CreateRequest) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreateSession"); err != nil {
		return session.Session{}, err
	}
	if len(session.FindConflicts(in.CoachID, in.ScheduledAt, in.EndTime.Sub(in.ScheduledAt), m.sessions)) > 0 {
		return session.Session{}, &api.Error{Kind: api.KindConflict, Op: "POST /sessions", Status: 409}
	}
	m.nextID++
	end := in.EndTime
	s := session.Session{
		ID:             fmt.Sprintf("s%d", m.nextID),
		CoachID:        ref.ByID[user.Summary](in.CoachID),
		EntrepreneurID: ref.ByID[user.Summary](in.EntrepreneurID),
		ManagerID:      in.ManagerID,
		ScheduledAt:    in.ScheduledAt,
		EndTime:        &end,
		Duration:       in.Duration,
		Status:         session.StatusScheduled,
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// CheckConflict answers like the server's conflict endpoint.
func (m *fakeAPI) CheckConflict(_ context.Context, slot scheduling.Slot) (conflicts.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CheckConflict"); err != nil {
		return conflicts.Result{}, err
	}
	found := session.FindConflicts(slot.CoachID, slot.Start, time.Duration(slot.Duration)*time.Minute, m.sessions)
	if len(found) == 0 {
		return conflicts.Result{}, nil
	}
	return conflicts.Result{HasConflict: true, Conflicting: &found[0]}, nil
}

// coachSessions is a CoachSessionsLoader over the stored sessions.
func (m *fakeAPI) coachSessions(ctx context.Context, coachID string, _ time.Time) ([]session.Session, error) {
	page, err := m.ListSessions(ctx, api.ListQuery{CoachID: coachID})
	return page.Items, err
}

func (m *fakeAPI) GetSession(_ context.Context, id string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return session.Session{}, &api.Error{Kind: api.KindNotFound, Op: "GET /sessions/" + id, Status: 404}
}

func (m *fakeAPI) UpdateSessionStatus(_ context.Context, id, status string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateSessionStatus"); err != nil {
		return session.Session{}, err
	}
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].Status = status
			return m.sessions[i], nil
		}
	}
	return session.Session{}, &api.Error{Kind: api.KindNotFound, Op: "PUT /sessions/" + id + "/status", Status: 404}
}

func (m *fakeAPI) UpdateGoalProgress(_ context.Context, id string, progress int) (goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateGoalProgress"); err != nil {
		return goal.Goal{}, err
	}
	g := m.goals[id]
	g.SetProgress(progress)
	m.goals[id] = g
	return g, nil
}

func (m *fakeAPI) UpdateMilestone(_ context.Context, goalID, milestoneID string, in api.MilestoneUpdate) (goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateMilestone"); err != nil {
		return goal.Goal{}, err
	}
	g := m.goals[goalID]
	i := slices.IndexFunc(g.Milestones, func(ms goal.Milestone) bool { return ms.ID == milestoneID })
	if err := g.UpdateMilestone(i, in.Status, in.Notes, fixedTime); err != nil {
		return goal.Goal{}, &api.Error{Kind: api.KindValidation, Op: "PUT /goals/" + goalID, Status: 422, Message: err.Error()}
	}
	m.goals[goalID] = g
	return g, nil
}

func (m *fakeAPI) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return payment.Payment{}, &api.Error{Kind: api.KindNotFound, Op: "GET /payments/" + id, Status: 404}
	}
	return p, nil
}

func (m *fakeAPI) MarkPaid(_ context.Context, id string, paidAt time.Time) (payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("MarkPaid"); err != nil {
		return payment.Payment{}, err
	}
	p := m.payments[id]
	if err := p.MarkPaid(paidAt); err != nil {
		return payment.Payment{}, err
	}
	m.paidAt = paidAt
	m.payments[id] = p
	return p, nil
}

func (m *fakeAPI) GetUser(_ context.Context, id string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("GetUser")
	u, ok := m.users[id]
	if !ok {
		return user.User{}, &api.Error{Kind: api.KindNotFound, Op: "GET /users/" + id, Status: 404}
	}
	return u, nil
}

func (m *fakeAPI) SetUserActive(_ context.Context, id string, active bool) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetUserActive"); err != nil {
		return user.User{}, err
	}
	u := m.users[id]
	u.IsActive = active
	m.users[id] = u
	return u, nil
}

func (m *fakeAPI) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call("Logout")
}

// mockInvalidator records invalidated resources.
type mockInvalidator struct {
	resources []string
}

// Invalidate implements Invalidator.
// PRE: none
// POST: resources are appended in call order
func (m *mockInvalidator) Invalidate(resources ...string) {
	m.resources = append(m.resources, resources...)
}

// manualClock captures debounce callbacks so tests fire them explicitly.
type manualClock struct {
	mu      sync.Mutex
	pending []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (c *manualClock) AfterFunc(_ time.Duration, f func()) conflicts.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, f)
	return manualTimer{}
}

// fire runs every scheduled callback. Callbacks of superseded inputs are inert.
func (c *manualClock) fire() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, f := range p {
		f()
	}
}
