package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdesk/redactor-backend/config"
	"github.com/docdesk/redactor-backend/internal/storage/sqlstore"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		Database:  config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(dir, "r.db")},
		Storage:   config.StorageConfig{UploadDir: filepath.Join(dir, "u"), OutputDir: filepath.Join(dir, "o"), TempDir: filepath.Join(dir, "t"), MaxUploadBytes: 1 << 20},
		OCR:       config.OCRConfig{DPI: 300, Language: "eng"},
		RateLimit: config.RateLimitConfig{RPS: 1, Burst: 1},
		App:       config.AppConfig{Version: "test"},
	}
}

func TestBuildRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	db := sqlstore.OpenTestDB(t)

	comps, err := BuildServices(cfg, db, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Storage.TempDir, comps.Renderer.CacheDir())

	r := BuildRouter(RouterDeps{ServiceName: "redactor", Config: cfg, DB: db, Services: comps.Services})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "up", body["db"])
		assert.Equal(t, "disabled", body["redis"])
	})

	t.Run("redactor routes are mounted", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/redactor/workspace/list", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/redactor/apply", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("heavy routes are rate limited", func(t *testing.T) {
		codes := make([]int, 0, 2)
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/redactor/apply", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusBadRequest, http.StatusTooManyRequests}, codes)
	})
}
