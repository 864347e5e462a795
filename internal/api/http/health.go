package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	DB        string    `json:"db,omitempty"`
	Redis     string    `json:"redis,omitempty"`
}

type HealthHandler struct {
	serviceName string
	version     string
	db          *sql.DB
	redis       *redis.Client
}

// NewHealthHandler builds the health check handler. Either store may be nil and is
// then reported as disabled.
func NewHealthHandler(serviceName, version string, db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		db:          db,
		redis:       rdb,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if h.db != nil {
		if err := h.db.PingContext(pingCtx); err != nil {
			dbStatus = "down"
		} else {
			dbStatus = "up"
		}
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(pingCtx).Err(); err != nil {
			redisStatus = "down"
		} else {
			redisStatus = "up"
		}
	}

	status, code := "healthy", http.StatusOK
	if dbStatus == "down" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else if redisStatus == "down" {
		status = "degraded"
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		DB:        dbStatus,
		Redis:     redisStatus,
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
