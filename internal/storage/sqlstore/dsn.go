package sqlstore

import (
	"fmt"

	"github.com/docdesk/redactor-backend/config"
)

// DriverName maps the configured driver onto the database/sql driver name.
func DriverName(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

func DSN(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "postgres" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslmode,
		)
	}
	return cfg.Path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}
