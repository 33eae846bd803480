// Package analytics serves learner profile views and caches the profile summaries the
// recommendation pipeline reads.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

// ProfileCache fronts a ProfileService with the shared cache store. Entries carry the
// user tag too, so every user-level invalidation trigger also drops the profile.
type ProfileCache struct {
	log    *logger.Logger
	source recommend.ProfileService
	store  cache.Store
	ttl    time.Duration
	group  singleflight.Group
}

func NewProfileCache(log *logger.Logger, source recommend.ProfileService, store cache.Store, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{
		log:    log.With("service", "ProfileCache"),
		source: source,
		store:  store,
		ttl:    ttl,
	}
}

func (p *ProfileCache) ProfileSummary(ctx context.Context, userID uuid.UUID) (recommend.ProfileSummary, error) {
	prof, _, err := p.Load(ctx, userID, true)
	return prof, err
}

// Load returns the profile and whether it came from the cache. With useCache false the
// profile is recomputed and the cached copy replaced.
func (p *ProfileCache) Load(ctx context.Context, userID uuid.UUID, useCache bool) (recommend.ProfileSummary, bool, error) {
	if useCache {
		if prof, ok := p.cached(ctx, userID); ok {
			return prof, true, nil
		}
	}
	v, err, _ := p.group.Do(userID.String(), func() (interface{}, error) {
		prof, err := p.source.ProfileSummary(ctx, userID)
		if err != nil {
			return recommend.ProfileSummary{}, err
		}
		p.put(ctx, userID, prof)
		return prof, nil
	})
	if err != nil {
		return recommend.ProfileSummary{}, false, err
	}
	return v.(recommend.ProfileSummary), false, nil
}

func (p *ProfileCache) Invalidate(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := p.store.InvalidateTag(ctx, cache.ProfileTag(userID))
	if err != nil {
		return 0, err
	}
	p.log.Debug("profile cache invalidated", "user_id", userID.String(), "removed", n)
	return n, nil
}

func (p *ProfileCache) cached(ctx context.Context, userID uuid.UUID) (recommend.ProfileSummary, bool) {
	raw, ok, err := p.store.Get(ctx, cache.ProfileKey(userID))
	if err != nil {
		p.log.Warn("profile cache read failed", "user_id", userID.String(), "error", err)
		return recommend.ProfileSummary{}, false
	}
	if !ok {
		return recommend.ProfileSummary{}, false
	}
	var prof recommend.ProfileSummary
	if err := json.Unmarshal(raw, &prof); err != nil {
		p.log.Warn("profile cache entry unreadable", "user_id", userID.String(), "error", err)
		return recommend.ProfileSummary{}, false
	}
	return prof, true
}

func (p *ProfileCache) put(ctx context.Context, userID uuid.UUID, prof recommend.ProfileSummary) {
	raw, err := json.Marshal(prof)
	if err != nil {
		p.log.Warn("profile encode failed", "user_id", userID.String(), "error", err)
		return
	}
	tags := []string{cache.UserTag(userID), cache.ProfileTag(userID)}
	if err := p.store.Set(ctx, cache.ProfileKey(userID), raw, p.ttl, tags); err != nil {
		p.log.Warn("profile cache write failed", "user_id", userID.String(), "error", err)
	}
}
