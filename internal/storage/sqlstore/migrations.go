package sqlstore

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema step. SQLite and Postgres get their own DDL since
// autoincrement keys and boolean columns differ between the two.
type Migration struct {
	Version     int
	Description string
	SQLite      string
	Postgres    string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "staging area for pending redaction changes",
		SQLite: `
			CREATE TABLE IF NOT EXISTS redaction_preview (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				filename TEXT NOT NULL,
				page INTEGER NOT NULL,
				x REAL NOT NULL DEFAULT 0,
				y REAL NOT NULL DEFAULT 0,
				width REAL NOT NULL DEFAULT 0,
				height REAL NOT NULL DEFAULT 0,
				type TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				created TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_redaction_preview_filename ON redaction_preview(filename, id);`,
		Postgres: `
			CREATE TABLE IF NOT EXISTS redaction_preview (
				id BIGSERIAL PRIMARY KEY,
				filename TEXT NOT NULL,
				page INTEGER NOT NULL,
				x DOUBLE PRECISION NOT NULL DEFAULT 0,
				y DOUBLE PRECISION NOT NULL DEFAULT 0,
				width DOUBLE PRECISION NOT NULL DEFAULT 0,
				height DOUBLE PRECISION NOT NULL DEFAULT 0,
				type TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				created TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_redaction_preview_filename ON redaction_preview(filename, id);`,
		Down: `DROP TABLE IF EXISTS redaction_preview;`,
	},
	{
		Version:     2,
		Description: "redaction templates and their version history",
		SQLite: `
			CREATE TABLE IF NOT EXISTS redaction_templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT '',
				doc_type TEXT NOT NULL DEFAULT '',
				boxes TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			);
			CREATE TABLE IF NOT EXISTS redaction_template_versions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				template_id TEXT NOT NULL REFERENCES redaction_templates(id),
				version INTEGER NOT NULL,
				name TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT '',
				doc_type TEXT NOT NULL DEFAULT '',
				boxes TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				UNIQUE(template_id, version)
			);`,
		Postgres: `
			CREATE TABLE IF NOT EXISTS redaction_templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT '',
				doc_type TEXT NOT NULL DEFAULT '',
				boxes TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			);
			CREATE TABLE IF NOT EXISTS redaction_template_versions (
				id BIGSERIAL PRIMARY KEY,
				template_id TEXT NOT NULL REFERENCES redaction_templates(id),
				version INTEGER NOT NULL,
				name TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT '',
				doc_type TEXT NOT NULL DEFAULT '',
				boxes TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				UNIQUE(template_id, version)
			);`,
		Down: `
			DROP TABLE IF EXISTS redaction_template_versions;
			DROP TABLE IF EXISTS redaction_templates;`,
	},
	{
		Version:     3,
		Description: "workspace of open documents",
		SQLite: `
			CREATE TABLE IF NOT EXISTS open_documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				filename TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT 0,
				opened TIMESTAMP NOT NULL
			);`,
		Postgres: `
			CREATE TABLE IF NOT EXISTS open_documents (
				id BIGSERIAL PRIMARY KEY,
				filename TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT FALSE,
				opened TIMESTAMPTZ NOT NULL
			);`,
		Down: `DROP TABLE IF EXISTS open_documents;`,
	},
	{
		Version:     4,
		Description: "append-only commit history",
		SQLite: `
			CREATE TABLE IF NOT EXISTS redaction_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_filename TEXT NOT NULL,
				output_filename TEXT NOT NULL,
				changes TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			);`,
		Postgres: `
			CREATE TABLE IF NOT EXISTS redaction_history (
				id BIGSERIAL PRIMARY KEY,
				source_filename TEXT NOT NULL,
				output_filename TEXT NOT NULL,
				changes TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			);`,
		Down: `DROP TABLE IF EXISTS redaction_history;`,
	},
}

// Migrations returns the ordered migration list.
func Migrations() []Migration {
	out := make([]Migration, len(migrations))
	copy(out, migrations)
	return out
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction together with its bookkeeping row.
func Migrate(db *sql.DB, driver string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at BIGINT NOT NULL,
			description TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		stmt := m.SQLite
		if driver == "postgres" {
			stmt = m.Postgres
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES ($1, $2, $3)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// CurrentVersion returns the highest applied migration, 0 when none.
func CurrentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Rollback reverts the most recent migration.
func Rollback(db *sql.DB) error {
	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var m *Migration
	for i := range migrations {
		if migrations[i].Version == current {
			m = &migrations[i]
			break
		}
	}
	if m == nil {
		return fmt.Errorf("migration %d not found", current)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rollback: %w", err)
	}
	if _, err := tx.Exec(m.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to roll back migration %d: %w", current, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", current); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	return tx.Commit()
}
