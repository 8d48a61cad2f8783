package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/handler"
	"github.com/stemsi/interview-coach/internal/middleware"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Interview *handler.InterviewHandler
	WS        *handler.WSHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
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
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))

	// Streams bypass compression.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:      middleware.DefaultBrotliConfig.Quality,
		MinLength:    middleware.DefaultBrotliConfig.MinLength,
		SkipPaths:    []string{"/ws/", "/api/v1/system/metrics/stream"},
		SkipSuffixes: []string{"/monitor"},
	}))

	router.GET("/health", handlers.System.Health)

	createLimiter := middleware.NewRateLimiter(cfg.CreateRateLimit, time.Minute)
	sessionAuth := middleware.RequireSessionToken(tokens)

	// ─── 1. Interviews ─────────────────────────────────────────────────
	interviews := router.Group("/api/v1/interviews")
	{
		interviews.POST("", createLimiter.Middleware(), handlers.Interview.CreateInterview)
		interviews.GET("", handlers.Interview.ListInterviews)
		interviews.DELETE("", handlers.Interview.ClearHistory)
		interviews.GET("/stats", handlers.Interview.GetStats)
		interviews.GET("/:id", handlers.Interview.GetInterview)
		interviews.GET("/:id/integrity", handlers.Interview.GetIntegrity)
		interviews.DELETE("/:id", handlers.Interview.DeleteInterview)
		interviews.GET("/:id/monitor", sessionAuth, handlers.Monitor.MonitorInterviewSSE)
	}

	// ─── 2. System ─────────────────────────────────────────────────────
	system := router.Group("/api/v1/system")
	{
		system.GET("/metrics", handlers.System.SystemMetrics)
		system.GET("/live", handlers.System.LiveInterviews)
		system.GET("/metrics/stream", handlers.System.SystemMetricsSSE)
	}

	// ─── 3. WebSocket (session token) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(sessionAuth)
	{
		ws.GET("/interviews/:id/stream", handlers.WS.InterviewStream)
	}

	return router
}
