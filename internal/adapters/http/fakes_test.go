package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/http/middleware"
	authStore "coachhub/internal/adapters/storage/authsession"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/authsession"
	"coachhub/internal/domain/goal"
	"coachhub/internal/domain/organization"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/rbac"
	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
	"coachhub/internal/domain/user"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory remote API shared by every client the factory hands out.
type fakeRemote struct {
	mu       sync.Mutex
	sessions []session.Session
	goals    map[string]goal.Goal
	payments map[string]payment.Payment
	users    map[string]user.User
	org      organization.Organization
	conflict bool
	errs     map[string]error
	calls    map[string]int
	created  []scheduling.CreateRequest
}

func newFakeRemote() *fakeRemote {
	due := testNow.Add(-72 * time.Hour)
	return &fakeRemote{
		sessions: []session.Session{{
			ID:             "s1",
			CoachID:        ref.ByID[user.Summary]("coach-1"),
			EntrepreneurID: ref.Embed(user.Summary{ID: "ent-1", FirstName: "Ada", LastName: "Lovelace"}),
			ScheduledAt:    testNow.Add(2 * time.Hour),
			Duration:       60,
			Status:         session.StatusScheduled,
		}},
		goals: map[string]goal.Goal{
			"g1": {
				ID:             "g1",
				Title:          "Close seed round",
				EntrepreneurID: ref.ByID[user.Summary]("ent-1"),
				Status:         goal.StatusInProgress,
				Priority:       goal.PriorityHigh,
				Progress:       40,
				Milestones:     []goal.Milestone{{ID: "m1", Title: "Pitch deck", Status: goal.MilestonePending}},
			},
		},
		payments: map[string]payment.Payment{
			"p1": {
				ID:            "p1",
				CoachID:       ref.ByID[user.Summary]("coach-1"),
				Amount:        250,
				Currency:      "EUR",
				Status:        payment.StatusPending,
				DueDate:       &due,
				InvoiceNumber: "INV-001",
			},
		},
		users: map[string]user.User{
			"manager-1": {ID: "manager-1", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Role: rbac.RoleManager, IsActive: true},
			"coach-1":   {ID: "coach-1", FirstName: "Alan", LastName: "Kay", Email: "alan@example.com", Role: rbac.RoleCoach, IsActive: true},
			"ent-1":     {ID: "ent-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Role: rbac.RoleEntrepreneur, IsActive: true},
		},
		org:   organization.Organization{ID: "org-1", Name: "Launchpad"},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

// call records op and returns its seeded error.
// PRE: m.mu is held
func (m *fakeRemote) call(op string) error {
	m.calls[op]++
	return m.errs[op]
}

func (m *fakeRemote) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *fakeRemote) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// Login accepts any password except "wrong".
// PRE: none
// POST: Returns the user with the given email or an authentication error
func (m *fakeRemote) Login(_ context.Context, email, password string) (api.AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Login"); err != nil {
		return api.AuthResult{}, err
	}
	for _, u := range m.users {
		if u.Email == email && password != "wrong" {
			return api.AuthResult{AccessToken: "access-" + u.ID, RefreshToken: "refresh-" + u.ID, User: u}, nil
		}
	}
	return api.AuthResult{}, &api.Error{Kind: api.KindAuthentication, Op: "POST /auth/login", Status: http.StatusUnauthorized}
}

// Refresh is never reached by the web layer.
func (m *fakeRemote) Refresh(context.Context, string) (api.AuthResult, error) {
	return api.AuthResult{}, &api.Error{Kind: api.KindAuthentication, Op: "POST /auth/refresh"}
}

// Logout records the call.
// PRE: none
// POST: Returns the seeded error for "Logout" if any
func (m *fakeRemote) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call("Logout")
}

// ListSessions returns the stored sessions of q.CoachID, or all when empty.
// PRE: none
// POST: Returns the seeded error for "ListSessions" if any
func (m *fakeRemote) ListSessions(_ context.Context, q api.ListQuery) (api.Page[session.Session], error) {
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

// ListGoals returns every stored goal.
func (m *fakeRemote) ListGoals(context.Context, api.ListQuery) (api.Page[goal.Goal], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListGoals"); err != nil {
		return api.Page[goal.Goal]{}, err
	}
	var out []goal.Goal
	for _, g := range m.goals {
		out = append(out, g)
	}
	return api.Page[goal.Goal]{Items: out}, nil
}

// ListPayments returns the stored payments matching q.Status.
func (m *fakeRemote) ListPayments(_ context.Context, q api.ListQuery) (api.Page[payment.Payment], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListPayments"); err != nil {
		return api.Page[payment.Payment]{}, err
	}
	var out []payment.Payment
	for _, p := range m.payments {
		if q.Status == "" || p.Status == q.Status {
			out = append(out, p)
		}
	}
	return api.Page[payment.Payment]{Items: out}, nil
}

// ListUsers returns every stored user.
func (m *fakeRemote) ListUsers(context.Context, api.ListQuery) (api.Page[user.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListUsers"); err != nil {
		return api.Page[user.User]{}, err
	}
	var out []user.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return api.Page[user.User]{Items: out}, nil
}

func (m *fakeRemote) GetOrganization(context.Context, string) (organization.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetOrganization"); err != nil {
		return organization.Organization{}, err
	}
	return m.org, nil
}

func (m *fakeRemote) GetSession(_ context.Context, id string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return session.Session{}, &api.Error{Kind: api.KindNotFound, Op: "GET /sessions/" + id, Status: http.StatusNotFound}
}

// UpdateSessionStatus changes a stored session.
// PRE: id exists
// POST: The stored session carries status
func (m *fakeRemote) UpdateSessionStatus(_ context.Context, id, status string) (session.Session, error) {
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
	return session.Session{}, &api.Error{Kind: api.KindNotFound, Op: "PATCH /sessions/" + id, Status: http.StatusNotFound}
}

// CreateSession stores the request as a new scheduled session.
// PRE: none
// POST: Returns the seeded error for "CreateSession" if any
func (m *fakeRemote) CreateSession(_ context.Context, in scheduling.CreateRequest) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreateSession"); err != nil {
		return session.Session{}, err
	}
	m.created = append(m.created, in)
	s := session.Session{
		ID:                 fmt.Sprintf("s%d", len(m.sessions)+1),
		CoachID:            ref.ByID[user.Summary](in.CoachID),
		EntrepreneurID:     ref.ByID[user.Summary](in.EntrepreneurID),
		ScheduledAt:        in.ScheduledAt,
		Duration:           in.Duration,
		Status:             session.StatusScheduled,
		VideoConferenceURL: in.VideoConferenceURL,
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// CheckConflict answers with the seeded conflict flag.
func (m *fakeRemote) CheckConflict(context.Context, api.ConflictCheckRequest) (api.ConflictCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CheckConflict"); err != nil {
		return api.ConflictCheck{}, err
	}
	return api.ConflictCheck{HasConflict: m.conflict}, nil
}

func (m *fakeRemote) UpdateGoalProgress(_ context.Context, id string, progress int) (goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return goal.Goal{}, &api.Error{Kind: api.KindNotFound, Op: "PATCH /goals/" + id, Status: http.StatusNotFound}
	}
	g.Progress = progress
	m.goals[id] = g
	return g, nil
}

func (m *fakeRemote) UpdateMilestone(_ context.Context, goalID, milestoneID string, in api.MilestoneUpdate) (goal.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok {
		return goal.Goal{}, &api.Error{Kind: api.KindNotFound, Op: "PATCH /goals/" + goalID, Status: http.StatusNotFound}
	}
	for i := range g.Milestones {
		if g.Milestones[i].ID == milestoneID {
			g.Milestones[i].Status = in.Status
			g.Milestones[i].Notes = in.Notes
		}
	}
	m.goals[goalID] = g
	return g, nil
}

func (m *fakeRemote) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return payment.Payment{}, &api.Error{Kind: api.KindNotFound, Op: "GET /payments/" + id, Status: http.StatusNotFound}
	}
	return p, nil
}

// MarkPaid marks a stored payment paid.
// PRE: id exists
// POST: Status is paid and PaidAt is paidAt
func (m *fakeRemote) MarkPaid(_ context.Context, id string, paidAt time.Time) (payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("MarkPaid"); err != nil {
		return payment.Payment{}, err
	}
	p := m.payments[id]
	p.Status = payment.StatusPaid
	p.PaidAt = &paidAt
	m.payments[id] = p
	return p, nil
}

func (m *fakeRemote) GetUser(_ context.Context, id string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.User{}, &api.Error{Kind: api.KindNotFound, Op: "GET /users/" + id, Status: http.StatusNotFound}
	}
	return u, nil
}

// SetUserActive changes a stored user.
// PRE: none
// POST: Returns not_found for unknown users
func (m *fakeRemote) SetUserActive(_ context.Context, id string, active bool) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetUserActive"); err != nil {
		return user.User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return user.User{}, &api.Error{Kind: api.KindNotFound, Op: "PATCH /users/" + id, Status: http.StatusNotFound}
	}
	u.IsActive = active
	m.users[id] = u
	return u, nil
}

var (
	_ RemoteAPI                   = (*fakeRemote)(nil)
	_ orchestrators.Authenticator = (*fakeRemote)(nil)
)

// testApp is a fully wired handler over a fakeRemote.
type testApp struct {
	handler  http.Handler
	remote   *fakeRemote
	sessions *authStore.MemoryStore
	drafts   *orchestrators.DraftRegistry
	cache    *querycache.Cache
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	remote := newFakeRemote()
	now := func() time.Time { return testNow }
	a := &testApp{
		remote:   remote,
		sessions: authStore.NewMemoryStore(now),
		drafts:   orchestrators.NewDraftRegistry(0),
		cache:    querycache.New(querycache.Options{Now: now}),
	}
	a.handler = NewMux(Deps{
		Auth:      remote,
		Clients:   func(string) RemoteAPI { return remote },
		Sessions:  a.sessions,
		Drafts:    a.drafts,
		Cache:     a.cache,
		CSRFKey:   []byte("0123456789abcdef0123456789abcdef"),
		RateLimit: 10000,
		Checker:   conflicts.Options{Debounce: time.Millisecond},
		Now:       now,
	})
	t.Cleanup(func() {
		for _, role := range []rbac.Role{rbac.RoleManager, rbac.RoleAdmin, rbac.RoleCoach, rbac.RoleEntrepreneur} {
			a.drafts.CloseOwner("tok-" + string(role))
		}
	})
	return a
}

// signIn stores a session for the seeded user with role and returns its cookie token.
func (a *testApp) signIn(t *testing.T, role rbac.Role) string {
	t.Helper()
	ids := map[rbac.Role]string{
		rbac.RoleManager:      "manager-1",
		rbac.RoleAdmin:        "manager-1",
		rbac.RoleCoach:        "coach-1",
		rbac.RoleEntrepreneur: "ent-1",
	}
	token := "tok-" + string(role)
	err := a.sessions.Save(context.Background(), authsession.Session{
		Token:          token,
		UserID:         ids[role],
		Email:          string(role) + "@example.com",
		FirstName:      "Test",
		Role:           role,
		OrganizationID: "org-1",
		AccessToken:    "access-" + token,
		CreatedAt:      testNow,
	})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	return token
}

// do sends a request through the whole middleware chain. A non-empty body is sent as JSON.
func (a *testApp) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if strings.HasPrefix(path, "/api/") {
		req.Header.Set("Accept", "application/json")
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}
