package app

import (
	"fmt"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/analytics"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/async"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/candidate"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/chain"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/feedback"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/orchestrator"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/prompt"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider/registry"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/rank"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/reqctx"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/toggle"
)

type Services struct {
	RequestContexts *reqctx.Builder
	Cache           *cache.Cache
	Orchestrator    *orchestrator.Orchestrator
	Feedback        *feedback.Service
	Profiles        *analytics.ProfileCache
	Analytics       *analytics.Service
	Async           *async.Service
}

func wireServices(log *logger.Logger, cfg *config.Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	rc := cfg.Recommend

	providers, err := registry.New(log, rc.Providers)
	if err != nil {
		return Services{}, fmt.Errorf("init providers: %w", err)
	}

	var store async.Store
	if clients.Redis != nil {
		store = cache.NewRedisStore(clients.Redis)
	} else {
		store = cache.NewMemoryStore(rc.Cache.MaxEntries)
	}
	resultCache := cache.New(log, store, rc.Cache, metrics)
	profiles := analytics.NewProfileCache(log, repos.Profiles, store, rc.Analytics.ProfileTTL.Duration)

	orch := orchestrator.New(orchestrator.Deps{
		Log:        log,
		Config:     rc,
		Toggles:    toggle.NewEvaluator(log, rc.Toggles),
		Candidates: candidate.NewBuilder(log, repos.Cards, repos.Problems),
		Enhancer:   candidate.NewEnhancer(rc.TagDomains),
		Profiles:   profiles,
		Prompts:    prompt.NewAssembler(rc.PromptVersion),
		Selector:   chain.NewSelector(log, rc),
		Chain:      chain.NewRunner(log, providers, chain.NewBreakers(log, metrics, chain.DefaultBreakerConfig()), metrics),
		Ranker:     rank.NewRanker(rc.Ranking),
		Cache:      resultCache,
		Metrics:    metrics,
	})

	return Services{
		RequestContexts: reqctx.NewBuilder(log, rc.TagDomains, cfg.IsDev()),
		Cache:           resultCache,
		Orchestrator:    orch,
		Feedback:        feedback.NewService(log, repos.Feedback, resultCache, metrics),
		Profiles:        profiles,
		Analytics:       analytics.NewService(profiles, rc.Ranking.DataQuality),
		Async:           async.NewService(log, store, orch, rc.Async),
	}, nil
}
