package bootstrap

import (
	"database/sql"
	"log"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/docdesk/redactor-backend/config"
	httpapi "github.com/docdesk/redactor-backend/internal/api/http"
	"github.com/docdesk/redactor-backend/internal/api/http/middleware"
	authctx "github.com/docdesk/redactor-backend/internal/auth"
	authmw "github.com/docdesk/redactor-backend/internal/auth/middleware"
	redactorhttp "github.com/docdesk/redactor-backend/internal/redactor/http"
)

const multipartMemory = 8 << 20

type RouterDeps struct {
	ServiceName string
	Config      *config.Config
	DB          *sql.DB
	Redis       *redis.Client
	Auth        *auth.Client
	Services    redactorhttp.Services
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.MaxMultipartMemory = multipartMemory

	r.Use(cors.New(cors.Config{
		AllowOrigins:     dep.Config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id", "X-User-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Config.App.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	if dep.Auth != nil {
		api.Use(authmw.FirebaseAuthMiddleware(dep.Auth))
	} else {
		log.Println("[auth] firebase not configured, using OptionalUser")
		api.Use(authctx.OptionalUser())
	}

	limiter := middleware.NewRateLimiter(dep.Config.RateLimit.RPS, dep.Config.RateLimit.Burst)
	redactor := redactorhttp.New(dep.Services, dep.Config.OCR.Default)
	redactor.Register(api.Group("/redactor"), limiter.Middleware())

	return r
}
