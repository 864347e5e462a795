package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/docdesk/redactor-backend/config"
	"github.com/docdesk/redactor-backend/internal/storage/sqlstore"
	"github.com/redis/go-redis/v9"
)

// OpenDB connects to the configured database and applies migrations.
func OpenDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sqlstore.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	log.Printf("[db] driver=%s connected, migrations applied", sqlstore.DriverName(cfg))
	return db, nil
}

// OpenRedis returns nil when Redis is not configured. A configured but
// unreachable server is an error.
func OpenRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		log.Println("[redis] REDIS_ADDR not set, suggestion cache disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected addr=%s db=%d", cfg.Addr, cfg.DB)
	return client, nil
}
