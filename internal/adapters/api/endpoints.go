package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"coachhub/internal/domain/goal"
	"coachhub/internal/domain/organization"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
	"coachhub/internal/domain/user"
)

// ListQuery carries scope and filter parameters for list endpoints.
// Empty fields are omitted from the query string.
type ListQuery struct {
	OrganizationID string
	CoachID        string
	EntrepreneurID string
	Status         string
	Role           string
	Active         *bool
	From           time.Time
	To             time.Time
	Search         string
	Page           int
	Limit          int
}

// Values encodes q as URL query parameters.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("organizationId", q.OrganizationID)
	set("coachId", q.CoachID)
	set("entrepreneurId", q.EntrepreneurID)
	set("status", q.Status)
	set("role", q.Role)
	set("search", q.Search)
	if q.Active != nil {
		v.Set("isActive", strconv.FormatBool(*q.Active))
	}
	if !q.From.IsZero() {
		v.Set("startDate", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("endDate", q.To.UTC().Format(time.RFC3339))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// AuthResult is the token pair and profile returned by login and refresh.
type AuthResult struct {
	AccessToken  string    `json:"accessToken"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	User         user.User `json:"user"`
}

// Access returns the access token under either of its field names.
func (a AuthResult) Access() string {
	if a.AccessToken != "" {
		return a.AccessToken
	}
	return a.Token
}

// Login exchanges credentials for tokens.
// PRE: email and password are non-empty
// POST: Returns tokens or an *Error (authentication on bad credentials)
func (b *Backend) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := b.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	return out, err
}

// Refresh exchanges a refresh token for a new token pair.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	var out AuthResult
	err := b.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refreshToken": refreshToken},
	}, &out)
	return out, err
}

// Logout revokes the refresh token server-side.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, request{method: http.MethodPost, path: "/auth/logout"}, nil)
	return err
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var out user.User
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/auth/me"}, &out)
	return out, err
}

// ListSessions lists sessions matching q.
func (c *Client) ListSessions(ctx context.Context, q ListQuery) (Page[session.Session], error) {
	return getList[session.Session](ctx, c, "/sessions", q.Values())
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, id string) (session.Session, error) {
	var out session.Session
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/sessions/" + url.PathEscape(id)}, &out)
	return out, err
}

// CreateSession creates a session from a wizard payload.
// POST: The returned session has a non-empty ID
func (c *Client) CreateSession(ctx context.Context, in scheduling.CreateRequest) (session.Session, error) {
	var out session.Session
	_, err := c.call(ctx, request{method: http.MethodPost, path: "/sessions", body: in}, &out)
	if err == nil && out.ID == "" {
		return out, &Error{Kind: KindUnknown, Op: "POST /sessions", Status: http.StatusCreated, Message: "the created session has no id"}
	}
	return out, err
}

// UpdateSessionStatus changes a session's status.
func (c *Client) UpdateSessionStatus(ctx context.Context, id, status string) (session.Session, error) {
	var out session.Session
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "/sessions/" + url.PathEscape(id) + "/status",
		body:   map[string]string{"status": status},
	}, &out)
	return out, err
}

// ConflictCheckRequest is the body of a conflict check.
type ConflictCheckRequest struct {
	CoachID          string    `json:"coachId"`
	ScheduledAt      time.Time `json:"scheduledAt"`
	Duration         int       `json:"duration"`
	ExcludeSessionID string    `json:"excludeSessionId,omitempty"`
}

// ConflictCheck is the server's answer to a conflict check.
type ConflictCheck struct {
	HasConflict        bool             `json:"hasConflict"`
	ConflictingSession *session.Session `json:"conflictingSession,omitempty"`
}

// CheckConflict asks whether the coach already has a session overlapping the slot.
func (c *Client) CheckConflict(ctx context.Context, in ConflictCheckRequest) (ConflictCheck, error) {
	in.ScheduledAt = in.ScheduledAt.UTC()
	var out ConflictCheck
	_, err := c.call(ctx, request{method: http.MethodPost, path: "/sessions/check-conflict", body: in}, &out)
	return out, err
}

// ListGoals lists goals matching q.
func (c *Client) ListGoals(ctx context.Context, q ListQuery) (Page[goal.Goal], error) {
	return getList[goal.Goal](ctx, c, "/goals", q.Values())
}

// GetGoal fetches one goal.
func (c *Client) GetGoal(ctx context.Context, id string) (goal.Goal, error) {
	var out goal.Goal
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/goals/" + url.PathEscape(id)}, &out)
	return out, err
}

// UpdateGoalProgress sets a goal's progress percentage.
func (c *Client) UpdateGoalProgress(ctx context.Context, id string, progress int) (goal.Goal, error) {
	var out goal.Goal
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "/goals/" + url.PathEscape(id) + "/progress",
		body:   map[string]int{"progress": progress},
	}, &out)
	return out, err
}

// MilestoneUpdate is the body of a milestone update.
type MilestoneUpdate struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// UpdateMilestone changes the status of one milestone of a goal.
func (c *Client) UpdateMilestone(ctx context.Context, goalID, milestoneID string, in MilestoneUpdate) (goal.Goal, error) {
	var out goal.Goal
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "/goals/" + url.PathEscape(goalID) + "/milestones/" + url.PathEscape(milestoneID),
		body:   in,
	}, &out)
	return out, err
}

// ListPayments lists payments matching q.
func (c *Client) ListPayments(ctx context.Context, q ListQuery) (Page[payment.Payment], error) {
	return getList[payment.Payment](ctx, c, "/payments", q.Values())
}

// GetPayment fetches one payment.
func (c *Client) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	var out payment.Payment
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/payments/" + url.PathEscape(id)}, &out)
	return out, err
}

// MarkPaid records an outstanding payment as paid.
func (c *Client) MarkPaid(ctx context.Context, id string, paidAt time.Time) (payment.Payment, error) {
	var out payment.Payment
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "/payments/" + url.PathEscape(id) + "/mark-paid",
		body:   map[string]time.Time{"paidAt": paidAt.UTC()},
	}, &out)
	return out, err
}

// ListUsers lists users matching q.
func (c *Client) ListUsers(ctx context.Context, q ListQuery) (Page[user.User], error) {
	return getList[user.User](ctx, c, "/users", q.Values())
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id string) (user.User, error) {
	var out user.User
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/users/" + url.PathEscape(id)}, &out)
	return out, err
}

// SetUserActive activates or deactivates a user.
func (c *Client) SetUserActive(ctx context.Context, id string, active bool) (user.User, error) {
	var out user.User
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "/users/" + url.PathEscape(id),
		body:   map[string]bool{"isActive": active},
	}, &out)
	return out, err
}

// GetOrganization fetches an organization.
func (c *Client) GetOrganization(ctx context.Context, id string) (organization.Organization, error) {
	var out organization.Organization
	_, err := c.call(ctx, request{method: http.MethodGet, path: "/organizations/" + url.PathEscape(id)}, &out)
	return out, err
}
