package authsession

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"coachhub/internal/adapters/storage"
	domain "coachhub/internal/domain/authsession"
	"coachhub/internal/domain/rbac"
)

// timeFormat is fixed width in UTC so stored times sort as strings.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const selectColumns = "SELECT token, user_id, email, first_name, last_name, role, organization_id, access_token, refresh_token, access_expires_at, created_at FROM auth_session"

// SQLiteStore implements Store using SQLite. API tokens are sealed at rest.
type SQLiteStore struct {
	db     storage.SQLDB
	sealer *Sealer
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore. now may be nil.
// PRE: the auth_session migration has been applied; sealer is non-nil
func NewSQLiteStore(db storage.SQLDB, sealer *Sealer, now func() time.Time) *SQLiteStore {
	if now == nil {
		now = time.Now
	}
	return &SQLiteStore{db: db, sealer: sealer, now: now}
}

// Get retrieves a session by its cookie token.
// PRE: token is non-empty
// POST: Returns ErrNotFound for unknown or expired sessions; expired rows are removed
func (s *SQLiteStore) Get(ctx context.Context, token string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE token = ?", token)
	entity, err := s.scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	if entity.Expired(s.now()) {
		if err := s.Delete(ctx, token); err != nil {
			return domain.Session{}, err
		}
		return domain.Session{}, ErrNotFound
	}
	return entity, nil
}

// Save persists a session, replacing its tokens when it already exists.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Session) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	ad := []byte(entity.Token)
	access, err := s.sealer.Seal([]byte(entity.AccessToken), ad)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal([]byte(entity.RefreshToken), ad)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	fields := []string{"token", "user_id", "email", "first_name", "last_name", "role", "organization_id", "access_token", "refresh_token", "access_expires_at", "created_at"}
	placeholders := make([]string, len(fields))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	updates := []string{
		"email=excluded.email",
		"first_name=excluded.first_name",
		"last_name=excluded.last_name",
		"role=excluded.role",
		"organization_id=excluded.organization_id",
		"access_token=excluded.access_token",
		"refresh_token=excluded.refresh_token",
		"access_expires_at=excluded.access_expires_at",
	}
	query := fmt.Sprintf(
		"INSERT INTO auth_session (%s) VALUES (%s) ON CONFLICT(token) DO UPDATE SET %s",
		strings.Join(fields, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	var accessExpires any
	if !entity.AccessExpiresAt.IsZero() {
		accessExpires = entity.AccessExpiresAt.UTC().Format(timeFormat)
	}
	createdAt := entity.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, query,
		entity.Token,
		entity.UserID,
		entity.Email,
		entity.FirstName,
		entity.LastName,
		string(entity.Role),
		entity.OrganizationID,
		access,
		refresh,
		accessExpires,
		createdAt.UTC().Format(timeFormat),
	)
	return err
}

// Delete removes a session. Unknown tokens are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM auth_session WHERE token = ?", token)
	return err
}

// DeleteByUser removes every session of userID.
func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM auth_session WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteExpired removes sessions created before now minus MaxAge.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-domain.MaxAge).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, "DELETE FROM auth_session WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// scanSession extracts a Session from a row scanner function and unseals its tokens.
func (s *SQLiteStore) scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var entity domain.Session
	var role, createdAt string
	var access, refresh []byte
	var accessExpires sql.NullString
	err := scan(
		&entity.Token,
		&entity.UserID,
		&entity.Email,
		&entity.FirstName,
		&entity.LastName,
		&role,
		&entity.OrganizationID,
		&access,
		&refresh,
		&accessExpires,
		&createdAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	entity.Role = rbac.Role(role)
	entity.CreatedAt, _ = parseTime(createdAt)
	if accessExpires.Valid && accessExpires.String != "" {
		entity.AccessExpiresAt, _ = parseTime(accessExpires.String)
	}

	ad := []byte(entity.Token)
	plain, err := s.sealer.Open(access, ad)
	if err != nil {
		return domain.Session{}, err
	}
	entity.AccessToken = string(plain)
	if plain, err = s.sealer.Open(refresh, ad); err != nil {
		return domain.Session{}, err
	}
	entity.RefreshToken = string(plain)
	return entity, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}
