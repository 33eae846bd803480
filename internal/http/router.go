package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-recommender/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-recommender/internal/http/middleware"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	MaxBodyBytes   int64
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler         *httpH.HealthHandler
	RecommendationHandler *httpH.RecommendationHandler
	FeedbackHandler       *httpH.FeedbackHandler
	EventHandler          *httpH.EventHandler
	AsyncHandler          *httpH.AsyncRecommendationHandler
	AnalyticsHandler      *httpH.AnalyticsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.RecordMetrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.LimitBody(cfg.MaxBodyBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Recommendations
		if cfg.RecommendationHandler != nil {
			protected.GET("/problems/ai-recommendations", cfg.RecommendationHandler.GetAIRecommendations)
		}
		if cfg.AsyncHandler != nil {
			protected.POST("/problems/ai-recommendations/async", cfg.AsyncHandler.Submit)
			protected.GET("/problems/ai-recommendations/async/:taskId", cfg.AsyncHandler.Status)
			protected.GET("/problems/ai-recommendations/daily-limit", cfg.AsyncHandler.DailyLimit)
		}

		// Feedback
		if cfg.FeedbackHandler != nil {
			protected.POST("/problems/:id/recommendation-feedback", cfg.FeedbackHandler.Submit)
		}

		// Invalidation events
		if cfg.EventHandler != nil {
			protected.POST("/recommendations/events", cfg.EventHandler.Ingest)
		}

		// Profile analytics
		if cfg.AnalyticsHandler != nil {
			profiles := protected.Group("/analytics/user-profile")
			profiles.GET("", cfg.AnalyticsHandler.CurrentProfile)
			profiles.GET("/:userId", cfg.AnalyticsHandler.Profile)
			profiles.GET("/:userId/summary", cfg.AnalyticsHandler.Summary)
			profiles.GET("/:userId/domains", cfg.AnalyticsHandler.Domains)
			profiles.GET("/:userId/tag-affinity", cfg.AnalyticsHandler.TagAffinity)
			profiles.DELETE("/:userId/cache", cfg.AnalyticsHandler.InvalidateCache)
		}
	}

	return r
}
