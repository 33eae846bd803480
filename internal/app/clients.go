package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-recommender/internal/clients/redis"
	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

type Clients struct {
	// Redis is nil when no address is configured.
	Redis goredis.UniversalClient
}

func wireClients(log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	rdb, err := redis.NewClient(log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	if rdb == nil {
		log.Info("redis not configured; using in-process recommendation cache")
	}
	return Clients{Redis: rdb}, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
