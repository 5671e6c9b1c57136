package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/handler"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/response"
	"github.com/stemsi/aptiq-proctor/internal/service"
	"github.com/stemsi/aptiq-proctor/internal/validator"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Attempt *handler.AttemptHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// loginLimiter may be nil to disable rate limiting.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	loginLimiter *middleware.RateLimiter,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	validator.Setup()

	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the logger and error bodies can see it.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.RequestLogger(log))
	router.Use(middleware.Brotli(cfg.BrotliQuality))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/auth")
	{
		login := []gin.HandlerFunc{handlers.Auth.Login}
		if loginLimiter != nil {
			login = append([]gin.HandlerFunc{loginLimiter.Middleware()}, login...)
		}
		auth.POST("/login", login...)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Catalog Group (JWT) ────────────────────────────────────────
	tests := router.Group("/api/tests")
	tests.Use(middleware.RequireJWT(authService), middleware.CacheControl(middleware.CacheCatalog))
	{
		tests.GET("", handlers.Test.ListTests)
		tests.GET("/:id", handlers.Test.GetTest)
	}

	// ─── 3. Attempt Group (JWT) ────────────────────────────────────────
	attempts := router.Group("/api/attempts")
	attempts.Use(middleware.RequireJWT(authService), middleware.CacheControl(middleware.CacheNone))
	{
		attempts.POST("/start", handlers.Attempt.StartAttempt)
		attempts.PUT("/:id/answer", handlers.Attempt.UpdateAnswer)
		attempts.PUT("/:id/warning", handlers.Attempt.RecordWarning)
		attempts.POST("/:id/submit", handlers.Attempt.SubmitAttempt)
		attempts.GET("/:id/review", handlers.Attempt.ReviewAttempt)
	}

	// ─── 4. Proctor Group (JWT + Role) ─────────────────────────────────
	proctor := router.Group("/api/proctor")
	proctor.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin),
		middleware.CacheControl(middleware.CacheNone),
	)
	{
		proctor.GET("/attempts", handlers.Monitor.Snapshot)
		proctor.GET("/monitor", handlers.Monitor.MonitorSSE)
	}

	// ─── 5. WebSocket Group (WS Auth + Role) ───────────────────────────
	ws := router.Group("/ws")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin),
	)
	{
		ws.GET("/proctor", handlers.WS.ProctorStream)
	}

	return router
}
