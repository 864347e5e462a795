package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 2)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("burst then reject", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
		assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	})

	t.Run("clients are independent", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, hit("10.0.0.2"))
	})

	t.Run("tokens refill", func(t *testing.T) {
		now = now.Add(time.Second)
		assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	})

	t.Run("idle clients are evicted", func(t *testing.T) {
		now = now.Add(time.Hour)
		hit("10.0.0.3")
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		assert.Len(t, limiter.clients, 1)
	})
}
