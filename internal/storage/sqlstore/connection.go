package sqlstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docdesk/redactor-backend/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// NewConnection opens the configured database, pings it and applies pending migrations.
func NewConnection(cfg *config.DatabaseConfig) (*sql.DB, error) {
	driver := DriverName(cfg)

	if driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite3" {
		// sqlite allows a single writer; one connection keeps transactions from
		// failing with SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	if err := Migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
