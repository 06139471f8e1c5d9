package browser_test

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"coachhub/internal/adapters/api"
	web "coachhub/internal/adapters/http"
	"coachhub/internal/adapters/http/perf"
	"coachhub/internal/adapters/storage"
	authStore "coachhub/internal/adapters/storage/authsession"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/application/orchestrators"
)

// testApp holds the running test server, the stub remote API and Playwright handles.
type testApp struct {
	BaseURL string
	Remote  *stubAPI
	PW      *playwright.Playwright
	Browser playwright.Browser
}

// requireBrowser skips unless browser tests were asked for.
func requireBrowser(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if os.Getenv("COACHHUB_BROWSER_TESTS") == "" {
		t.Skip("set COACHHUB_BROWSER_TESTS=1 to run browser tests")
	}
}

// newTestApp wires the real server against a stub remote API and a temp SQLite session store.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	remote := newStubAPI(time.Now())
	apiSrv := httptest.NewServer(remote.handler())
	t.Cleanup(apiSrv.Close)

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	collector := perf.NewCollector(0)
	sealer, err := authStore.NewSealer([]byte("browser-test-session-key"))
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}
	sessions := authStore.NewSQLiteStore(storage.NewTimedDB(db, collector, 0), sealer, nil)
	drafts := orchestrators.NewDraftRegistry(0)

	backend, err := api.NewBackend(api.Config{
		BaseURL:        apiSrv.URL,
		Collector:      collector,
		OnUnauthorized: web.ExpireSession(sessions, drafts),
	})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	tokens := orchestrators.NewSessionTokens(orchestrators.RefreshDeps{Auth: backend, Store: sessions}, nil)

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	// Change to project root so the relative static path works
	projectRoot := findProjectRoot(t)
	origDir, _ := os.Getwd()
	if err := os.Chdir(projectRoot); err != nil {
		t.Fatalf("failed to chdir to project root: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })

	mux := web.NewMux(web.Deps{
		Auth:      backend,
		Clients:   func(token string) web.RemoteAPI { return backend.For(tokens.For(token)) },
		Sessions:  sessions,
		Drafts:    drafts,
		Collector: collector,
		CSRFKey:   []byte("0123456789abcdef0123456789abcdef"),
		RateLimit: 1000,
		Checker:   conflicts.Options{Debounce: 50 * time.Millisecond},
		StaticDir: "static",
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("test_server_failed")
		}
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/login")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Shutdown(context.Background())
		db.Close()
	})

	return &testApp{
		BaseURL: baseURL,
		Remote:  remote,
		PW:      pw,
		Browser: browser,
	}
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in through the login form as the stub user with email.
func (a *testApp) login(t *testing.T, page playwright.Page, email string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=email]").Fill(email); err != nil {
		t.Fatalf("failed to fill email: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill("secret"); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/dashboard", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not redirect to dashboard: %v", err)
	}
}

// findProjectRoot walks up from the working directory to find the project root (contains go.mod).
func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find project root (go.mod) from working directory")
		}
		dir = parent
	}
}
