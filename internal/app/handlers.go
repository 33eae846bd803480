package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	httpH "github.com/yungbote/neurobridge-recommender/internal/http/handlers"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

type Handlers struct {
	Health         *httpH.HealthHandler
	Recommendation *httpH.RecommendationHandler
	Feedback       *httpH.FeedbackHandler
	Event          *httpH.EventHandler
	Async          *httpH.AsyncRecommendationHandler
	Analytics      *httpH.AnalyticsHandler
}

func wireHandlers(log *logger.Logger, _ *config.Config, services Services, db *gorm.DB, clients Clients) Handlers {
	log.Info("Wiring handlers...")

	checks := map[string]httpH.Pinger{
		"database": httpH.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if clients.Redis != nil {
		checks["redis"] = httpH.PingFunc(func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		})
	}

	return Handlers{
		Health: httpH.NewHealthHandler(checks),
		Recommendation: httpH.NewRecommendationHandlerWithDeps(httpH.RecommendationHandlerDeps{
			Log:         log,
			Builder:     services.RequestContexts,
			Recommender: services.Orchestrator,
		}),
		Feedback: httpH.NewFeedbackHandlerWithDeps(httpH.FeedbackHandlerDeps{
			Log:      log,
			Feedback: services.Feedback,
		}),
		Event: httpH.NewEventHandlerWithDeps(httpH.EventHandlerDeps{
			Log:   log,
			Cache: services.Cache,
		}),
		Async: httpH.NewAsyncRecommendationHandlerWithDeps(httpH.AsyncRecommendationHandlerDeps{
			Log:     log,
			Builder: services.RequestContexts,
			Tasks:   services.Async,
		}),
		Analytics: httpH.NewAnalyticsHandlerWithDeps(httpH.AnalyticsHandlerDeps{
			Log:       log,
			Analytics: services.Analytics,
		}),
	}
}
