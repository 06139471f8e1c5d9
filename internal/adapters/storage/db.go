package storage

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migration is one schema step. Steps run in order inside a transaction and
// are never edited once released; add a new step instead.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "auth_session",
		sql: `
	CREATE TABLE IF NOT EXISTS auth_session (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		organization_id TEXT NOT NULL DEFAULT '',
		access_token BLOB NOT NULL,
		refresh_token BLOB,
		access_expires_at TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_auth_session_user ON auth_session(user_id);
	CREATE INDEX IF NOT EXISTS idx_auth_session_created ON auth_session(created_at);`,
	},
}

// InitDB prepares a connection for use.
// PRE: db is a valid database connection
// POST: WAL mode and foreign keys are enabled and all migrations are applied
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return MigrateDB(db)
}

// MigrateDB applies every migration newer than the recorded schema version.
// PRE: db is a valid database connection
// POST: SchemaVersion(db) == LatestSchemaVersion()
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	for v := current; v < len(migrations); v++ {
		m := migrations[v]
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Info().Int("version", v+1).Str("name", m.name).Msg("schema_migrated")
	}
	return nil
}

// SchemaVersion returns the number of applied migrations.
func SchemaVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// LatestSchemaVersion returns the version MigrateDB migrates to.
func LatestSchemaVersion() int {
	return len(migrations)
}
