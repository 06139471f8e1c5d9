package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. COACHHUB_ADDR.
const Prefix = "COACHHUB"

// keyLen is the size of the CSRF key and of generated session keys.
const keyLen = 32

// ErrMissingKey is returned in production when a secret key is unset.
var ErrMissingKey = errors.New("key is required in production")

// App is the server configuration.
type App struct {
	Env  string `envconfig:"ENV" default:"development"`
	Addr string `envconfig:"ADDR" default:":8080"`

	// Remote API
	APIBaseURL string        `envconfig:"API_BASE_URL" required:"true"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"15s"`

	// Secrets, hex or raw
	CSRFKey    string `envconfig:"CSRF_KEY"`
	SessionKey string `envconfig:"SESSION_KEY"`
	SessionDB  string `envconfig:"SESSION_DB" default:"coachhub.db"`

	// Email
	ResendKey  string `envconfig:"RESEND_KEY"`
	ResendFrom string `envconfig:"RESEND_FROM" default:"CoachHub <noreply@coachhub.app>"`
	ReplyTo    string `envconfig:"REPLY_TO"`

	RateLimit        int           `envconfig:"RATE_LIMIT" default:"20"`
	CacheStale       time.Duration `envconfig:"CACHE_STALE" default:"30s"`
	ConflictDebounce time.Duration `envconfig:"CONFLICT_DEBOUNCE" default:"300ms"`
	DraftIdle        time.Duration `envconfig:"DRAFT_IDLE" default:"30m"`
	SlowRequestMs    int           `envconfig:"SLOW_REQUEST_MS" default:"500"`
	Timezone         string        `envconfig:"TIMEZONE" default:"UTC"`

	// Generated names the keys that were generated because they were unset.
	Generated []string `ignored:"true"`

	csrfKey    []byte
	sessionKey []byte
	location   *time.Location
}

// Load reads an optional .env file and then the COACHHUB_ environment.
// POST: In production CSRFKeyBytes and SessionKeyBytes come from the environment
func Load() (App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return App{}, fmt.Errorf("read .env: %w", err)
	}
	var c App
	if err := envconfig.Process(Prefix, &c); err != nil {
		return App{}, err
	}
	c.Env = normalizeEnv(c.Env)
	if err := c.resolve(); err != nil {
		return App{}, err
	}
	return c, nil
}

// resolve decodes keys and the time zone, generating keys outside production.
func (c *App) resolve() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("%s_API_BASE_URL is required", Prefix)
	}
	var err error
	if c.csrfKey, err = c.key("CSRF_KEY", c.CSRFKey); err != nil {
		return err
	}
	if len(c.csrfKey) != keyLen {
		return fmt.Errorf("%s_CSRF_KEY must be %d bytes, got %d", Prefix, keyLen, len(c.csrfKey))
	}
	if c.sessionKey, err = c.key("SESSION_KEY", c.SessionKey); err != nil {
		return err
	}
	if len(c.sessionKey) < 16 {
		return fmt.Errorf("%s_SESSION_KEY must be at least 16 bytes", Prefix)
	}
	if c.location, err = time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%s_TIMEZONE: %w", Prefix, err)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("%s_RATE_LIMIT must be positive", Prefix)
	}
	return nil
}

func (c *App) key(name, value string) ([]byte, error) {
	if value != "" {
		return decodeKey(value), nil
	}
	if c.IsProduction() {
		return nil, fmt.Errorf("%s_%s: %w", Prefix, name, ErrMissingKey)
	}
	b := make([]byte, keyLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	c.Generated = append(c.Generated, Prefix+"_"+name)
	return b, nil
}

// decodeKey reads a 64-character value as hex and anything else as raw bytes.
func decodeKey(v string) []byte {
	if len(v) == 2*keyLen {
		if b, err := hex.DecodeString(v); err == nil {
			return b
		}
	}
	return []byte(v)
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// IsProduction reports whether secure cookies and configured keys are required.
func (c App) IsProduction() bool {
	return c.Env == "production"
}

// EmailEnabled reports whether a Resend key is configured.
func (c App) EmailEnabled() bool {
	return c.ResendKey != ""
}

// CSRFKeyBytes returns the decoded CSRF key.
func (c App) CSRFKeyBytes() []byte { return c.csrfKey }

// SessionKeyBytes returns the decoded key that seals stored API tokens.
func (c App) SessionKeyBytes() []byte { return c.sessionKey }

// Location returns the zone dates are shown and parsed in.
func (c App) Location() *time.Location { return c.location }
