package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/handler"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Report  *handler.ReportHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokenService *service.TokenService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Proctor-Key"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for attempt creation (10 requests per minute per IP):
	// admission is the only unauthenticated write.
	admissionLimiter := middleware.NewAdmissionLimiter(10, time.Minute)

	// ─── 1. Public Group (Rate Limited) ────────────────────────────────
	publicAPI := router.Group("/api/v1")
	{
		publicAPI.POST("/exams/:exam_id/attempts",
			admissionLimiter.Middleware(),
			handlers.Attempt.CreateAttempt,
		)
	}

	// ─── 2. Attempt Group (Session Token) ──────────────────────────────
	attemptAPI := router.Group("/api/v1/attempts/:attempt_id")
	attemptAPI.Use(middleware.RequireAttemptToken(tokenService))
	{
		attemptAPI.GET("/paper", handlers.Attempt.GetPaper)
		attemptAPI.POST("/start", handlers.Attempt.BeginTimer)
		attemptAPI.PUT("/answers", handlers.Attempt.SaveAnswer)
		attemptAPI.POST("/violations", handlers.Attempt.RecordViolation)
		attemptAPI.POST("/submit", handlers.Attempt.Submit)
		attemptAPI.GET("/status", handlers.Attempt.Status)
	}

	// ─── 3. WebSocket Group (Session Token via Query) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptWSAuth(tokenService))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Proctor Group (Shared Key, Read-Only) ──────────────────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireProctorKey(cfg.ProctorKey))
	{
		proctorAPI.GET("/attempts/:attempt_id/report", handlers.Report.GetAttemptReport)
		proctorAPI.GET("/exams/:exam_id/reports", handlers.Report.GetExamReports)
	}

	return router
}
