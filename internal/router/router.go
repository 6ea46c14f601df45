package router

import (
	"net/http"
	"time"

	"github.com/Breniell/certtrack-proctor/internal/config"
	"github.com/Breniell/certtrack-proctor/internal/handler"
	"github.com/Breniell/certtrack-proctor/internal/middleware"
	"github.com/Breniell/certtrack-proctor/internal/response"
	"github.com/Breniell/certtrack-proctor/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Portal     *handler.PortalHandler
	Evaluation *handler.EvaluationHandler
	Monitor    *handler.MonitorHandler
	Stream     *handler.StreamHandler
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

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus scrape endpoint.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/participant/login", handlers.Auth.ParticipantLogin)
		auth.POST("/trainer/login", handlers.Auth.TrainerLogin)

		// Authenticated profile routes
		auth.POST("/participant/logout", middleware.RequireParticipantJWT(authService), handlers.Auth.ParticipantLogout)
		auth.GET("/participant/me", middleware.RequireParticipantJWT(authService), handlers.Auth.GetParticipantProfile)
	}

	// ─── 2. Participant Group (JWT + Single Device) ────────────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(
		middleware.RequireParticipantJWT(authService),
		middleware.CheckSingleDeviceLogin(authService),
	)
	{
		participantAPI.GET("/lobby", handlers.Portal.GetLobby)
		participantAPI.POST("/evaluations/:evaluation_id/join", handlers.Portal.JoinEvaluation)
		participantAPI.GET("/evaluations/:evaluation_id/paper", handlers.Portal.GetEvaluationPaper)
		participantAPI.GET("/evaluations/:evaluation_id/state", handlers.Portal.GetEvaluationState)
	}

	// ─── 3. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(authService))
	{
		ws.GET("/participant/evaluations/:evaluation_id/stream", handlers.Stream.EvaluationStream)
	}

	// ─── 4. Trainer Group (JWT) ────────────────────────────────────────
	trainerAPI := router.Group("/api/v1/trainer")
	trainerAPI.Use(middleware.RequireTrainerJWT(authService))
	{
		// Participant account management
		trainerAPI.POST("/participants", handlers.Auth.RegisterParticipant)
		trainerAPI.POST("/participants/:participant_id/reset-login", handlers.Auth.ResetParticipantLogin)

		// Evaluation management
		trainerAPI.GET("/evaluations", handlers.Evaluation.ListEvaluations)
		trainerAPI.POST("/evaluations", handlers.Evaluation.CreateEvaluation)
		trainerAPI.GET("/evaluations/:evaluation_id", handlers.Evaluation.GetEvaluation)
		trainerAPI.PUT("/evaluations/:evaluation_id", handlers.Evaluation.UpdateEvaluation)
		trainerAPI.DELETE("/evaluations/:evaluation_id", handlers.Evaluation.DeleteEvaluation)
		trainerAPI.POST("/evaluations/:evaluation_id/publish", handlers.Evaluation.PublishEvaluation)
		trainerAPI.POST("/evaluations/:evaluation_id/archive", handlers.Evaluation.ArchiveEvaluation)
		trainerAPI.GET("/evaluations/:evaluation_id/results", handlers.Evaluation.GetResults)

		// Question management
		trainerAPI.GET("/evaluations/:evaluation_id/questions", handlers.Evaluation.ListQuestions)
		trainerAPI.POST("/evaluations/:evaluation_id/questions", handlers.Evaluation.AddQuestion)
		trainerAPI.PUT("/evaluations/:evaluation_id/questions", handlers.Evaluation.ReplaceQuestions)

		// Live monitoring & surveillance
		trainerAPI.GET("/evaluations/:evaluation_id/monitor", handlers.Monitor.MonitorEvaluationSSE)
		trainerAPI.GET("/evaluations/:evaluation_id/participants/:participant_id/report", handlers.Monitor.GetSurveillanceReport)
		trainerAPI.GET("/sessions/:session_id/analysis", handlers.Monitor.GetSessionAnalysis)
	}

	return router
}
