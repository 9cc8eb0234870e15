package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/handler"
	"github.com/quizmasterhq/quizmaster/internal/middleware"
	"github.com/quizmasterhq/quizmaster/internal/response"
	"github.com/quizmasterhq/quizmaster/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Student *handler.StudentHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. The cached test payload is the
	// main beneficiary.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes. Role choice is open to any valid
		// token, including accounts that have not picked one yet.
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
		auth.POST("/role", middleware.RequireAuth(authService), handlers.Auth.SetRole)
		auth.POST("/logout", middleware.RequireAuth(authService), handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudent(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/tests", handlers.Student.GetLobby)
		studentAPI.GET("/tests/:test_id", handlers.Student.GetTestPayload)
		studentAPI.POST("/tests/:test_id/attempt", handlers.Student.StartAttempt)
		studentAPI.GET("/tests/:test_id/attempt", handlers.Student.GetAttempt)
		studentAPI.GET("/tests/:test_id/attempt/state", handlers.Student.GetAttemptState)
		studentAPI.POST("/tests/:test_id/attempt/submit", handlers.Student.SubmitAttempt)
		studentAPI.GET("/tests/:test_id/result", handlers.Student.GetResult)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/student/tests/:test_id/stream", handlers.WS.AttemptStream)
		ws.GET("/teacher/tests/:test_id/results", handlers.WS.ResultsStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacher(authService))
	{
		teacherAPI.GET("/tests", handlers.Test.ListTests)
		teacherAPI.POST("/tests", handlers.Test.CreateTest)
		teacherAPI.GET("/tests/:test_id", handlers.Test.GetTest)
		teacherAPI.PUT("/tests/:test_id", handlers.Test.UpdateTest)
		teacherAPI.DELETE("/tests/:test_id", handlers.Test.DeleteTest)
		teacherAPI.POST("/tests/:test_id/active", handlers.Test.SetActive)
		teacherAPI.GET("/tests/:test_id/questions", handlers.Test.GetQuestions)
		teacherAPI.PUT("/tests/:test_id/questions", handlers.Test.ReplaceQuestions)
		teacherAPI.GET("/tests/:test_id/results", handlers.Test.ListResults)

		teacherAPI.GET("/system/metrics", handlers.System.MetricsSSE)
	}

	return router
}
