package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/email"
	web "coachhub/internal/adapters/http"
	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/adapters/http/perf"
	"coachhub/internal/adapters/storage"
	authStore "coachhub/internal/adapters/storage/authsession"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/querycache"
	"coachhub/internal/config"
	"coachhub/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// sweepInterval is how often idle drafts and expired sessions are discarded.
const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	log.Logger = logger.New(cfg.Env)
	for _, name := range cfg.Generated {
		log.Warn().Str("key", name).Msg("generated_ephemeral_key")
	}

	// Sessions live in SQLite with WAL mode and a busy timeout
	dsn := cfg.SessionDB + "?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("database_open_failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database_unreachable")
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatal().Err(err).Msg("database_migrate_failed")
	}

	// Performance instrumentation: the collector feeds the timing middleware,
	// the upstream transport and the timed DB
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowRequestMs)

	sealer, err := authStore.NewSealer(cfg.SessionKeyBytes())
	if err != nil {
		log.Fatal().Err(err).Msg("session_sealer_failed")
	}
	sessions := authStore.NewSQLiteStore(timedDB, sealer, nil)
	drafts := orchestrators.NewDraftRegistry(cfg.DraftIdle)

	backend, err := api.NewBackend(api.Config{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.APITimeout,
		Collector:      collector,
		SlowUpstreamMs: cfg.SlowRequestMs,
		OnUnauthorized: web.ExpireSession(sessions, drafts),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("api_backend_failed")
	}
	tokens := orchestrators.NewSessionTokens(orchestrators.RefreshDeps{Auth: backend, Store: sessions}, nil)

	deps := web.Deps{
		Auth:          backend,
		Clients:       func(token string) web.RemoteAPI { return backend.For(tokens.For(token)) },
		Sessions:      sessions,
		Drafts:        drafts,
		Cache:         querycache.New(querycache.Options{Stale: cfg.CacheStale}),
		Collector:     collector,
		CSRFKey:       cfg.CSRFKeyBytes(),
		RateLimit:     cfg.RateLimit,
		SlowRequestMs: cfg.SlowRequestMs,
		Location:      cfg.Location(),
		Checker:       conflicts.Options{Debounce: cfg.ConflictDebounce},
		StaticDir:     "static",
	}
	if cfg.EmailEnabled() {
		deps.Email = email.NewResendSender(cfg.ResendKey, cfg.ResendFrom, cfg.ReplyTo)
		log.Info().Str("from", cfg.ResendFrom).Msg("email_sender_configured")
	} else if cfg.IsProduction() {
		log.Warn().Msg("email_disabled: COACHHUB_RESEND_KEY is not set")
	}
	middleware.SecureCookies = cfg.IsProduction()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sweep(ctx, drafts, sessions)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewMux(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown_failed")
		}
	}()

	log.Info().
		Str("version", version).
		Str("addr", cfg.Addr).
		Str("env", cfg.Env).
		Str("api", cfg.APIBaseURL).
		Int("schema", storage.LatestSchemaVersion()).
		Msg("server_starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server_failed")
	}
	log.Info().Msg("server_stopped")
}

// sweep discards idle scheduling drafts and expired sessions until ctx ends.
func sweep(ctx context.Context, drafts *orchestrators.DraftRegistry, sessions *authStore.SQLiteStore) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := drafts.Sweep(now); n > 0 {
				log.Debug().Int("count", n).Msg("drafts_swept")
			}
			n, err := sessions.DeleteExpired(ctx, now)
			if err != nil {
				log.Warn().Err(err).Msg("session_sweep_failed")
			} else if n > 0 {
				log.Info().Int("count", n).Msg("sessions_expired")
			}
		}
	}
}
