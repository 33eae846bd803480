package app

import (
	"github.com/yungbote/neurobridge-recommender/internal/config"
	apphttp "github.com/yungbote/neurobridge-recommender/internal/http"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg *config.Config, metrics *observability.Metrics, h Handlers, mw Middleware) *apphttp.Server {
	log.Info("Wiring router...")
	return apphttp.NewServer(log, cfg.HTTP, apphttp.RouterConfig{
		Log:                   log,
		ServiceName:           cfg.Observability.ServiceName,
		CORSOrigins:           cfg.HTTP.CORSOrigins,
		MaxBodyBytes:          cfg.HTTP.MaxRequestBytes,
		Metrics:               metrics,
		AuthMiddleware:        mw.Auth,
		HealthHandler:         h.Health,
		RecommendationHandler: h.Recommendation,
		FeedbackHandler:       h.Feedback,
		EventHandler:          h.Event,
		AsyncHandler:          h.Async,
		AnalyticsHandler:      h.Analytics,
	})
}
