package web

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/email"
	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/adapters/http/perf"
	authStore "coachhub/internal/adapters/storage/authsession"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/projections"
	"coachhub/internal/application/querycache"
)

// RemoteAPI is everything handlers ask of the remote API on behalf of one
// user. *api.Client implements it.
type RemoteAPI interface {
	projections.Reader
	orchestrators.Logouter
	orchestrators.SessionStatusAPI
	orchestrators.SessionCreator
	orchestrators.GoalAPI
	orchestrators.PaymentAPI
	orchestrators.UserActiveAPI
	CheckConflict(ctx context.Context, in api.ConflictCheckRequest) (api.ConflictCheck, error)
}

var _ RemoteAPI = (*api.Client)(nil)

// ClientFactory returns the remote API client of the session with cookie token.
type ClientFactory func(token string) RemoteAPI

// Deps holds everything the web layer needs.
// Email may be nil; payment emails are then disabled.
type Deps struct {
	Auth          orchestrators.Authenticator
	Clients       ClientFactory
	Sessions      authStore.Store
	Drafts        *orchestrators.DraftRegistry
	Cache         *querycache.Cache
	Email         email.Sender
	Collector     *perf.Collector
	CSRFKey       []byte
	RateLimit     int
	SlowRequestMs int
	Location      *time.Location
	Checker       conflicts.Options
	StaticDir     string
	Now           func() time.Time
}

// Global dependencies (set by NewMux)
var app Deps

// NewMux wires HTTP handlers for the app.
func NewMux(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Drafts == nil {
		d.Drafts = orchestrators.NewDraftRegistry(0)
	}
	if d.Cache == nil {
		d.Cache = querycache.New(querycache.Options{Now: d.Now})
	}
	app = d

	mux := http.NewServeMux()
	if d.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(d.StaticDir))))
	}
	registerRoutes(mux)

	// Apply middleware: SecurityHeaders -> CSRF -> Auth -> RateLimit -> Timing -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(d.CSRFKey),
		middleware.Auth(d.Sessions),
		middleware.RateLimit(d.RateLimit),
		middleware.Timing(d.Collector, d.SlowRequestMs),
	)
}

// ExpireSession returns the callback run when the remote API rejects a
// session for good: the stored session and its drafts are discarded.
func ExpireSession(sessions authStore.Store, drafts orchestrators.DraftCloser) func(ctx context.Context) {
	return func(ctx context.Context) {
		token, ok := middleware.SessionToken(ctx)
		if !ok {
			return
		}
		if err := sessions.Delete(ctx, token); err != nil {
			log.Warn().Err(err).Msg("expired_session_delete_failed")
		}
		if drafts != nil {
			drafts.CloseOwner(token)
		}
	}
}
