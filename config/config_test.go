package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "output/redactions", cfg.Storage.OutputDir)
	assert.Equal(t, int64(32<<20), cfg.Storage.MaxUploadBytes)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Models.PatternNER)
	assert.Equal(t, 300.0, cfg.OCR.DPI)
	assert.Contains(t, cfg.Models.KnownCompanies, "amazon")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RENDER_CACHE_TTL", "30m")
	t.Setenv("OCR_DEFAULT", "true")
	t.Setenv("KNOWN_COMPANIES", "Acme, Globex ,")
	t.Setenv("MODEL_SERVER_URL", "http://models:8000/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 30*time.Minute, cfg.Storage.RenderCacheTTL)
	assert.True(t, cfg.OCR.Default)
	assert.Equal(t, []string{"Acme", "Globex"}, cfg.Models.KnownCompanies)
	assert.Equal(t, "http://models:8000", cfg.Models.ServerURL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("OCR_DEFAULT", "maybe")
	t.Setenv("MODEL_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.OCR.Default)
	assert.Equal(t, 30*time.Second, cfg.Models.Timeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080"},
			Database:  DatabaseConfig{Driver: "sqlite3", Path: "x.db"},
			Storage:   StorageConfig{UploadDir: "u", OutputDir: "o", TempDir: "t"},
			OCR:       OCRConfig{DPI: 300},
			RateLimit: RateLimitConfig{RPS: 1, Burst: 1},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		c := base()
		c.Database.Driver = "mysql"
		assert.Error(t, c.Validate())
	})

	t.Run("postgres requires host", func(t *testing.T) {
		c := base()
		c.Database.Driver = "postgres"
		assert.Error(t, c.Validate())
		c.Database.Host = "db"
		assert.NoError(t, c.Validate())
	})

	t.Run("missing dirs", func(t *testing.T) {
		c := base()
		c.Storage.TempDir = ""
		assert.Error(t, c.Validate())
	})
}
