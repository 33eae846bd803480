package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	defaultTTL             = time.Hour
	defaultMaxDroppedRatio = 0.5
)

// Invalidation triggers, used as metric labels.
const (
	TriggerReviewCompleted    = "review_completed"
	TriggerPreferencesChanged = "preferences_changed"
	TriggerFSRSParamsChanged  = "fsrs_params_changed"
	TriggerProblemsModified   = "problems_modified"
	TriggerFeedback           = "feedback"
)

type Cache struct {
	log        *logger.Logger
	store      Store
	ttl        time.Duration
	maxDropped float64
	collapse   bool
	group      singleflight.Group
	metrics    *observability.Metrics
}

func New(log *logger.Logger, store Store, cfg config.CacheConfig, m *observability.Metrics) *Cache {
	ttl := cfg.TTL.Duration
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxDropped := cfg.MaxDroppedRatio
	if maxDropped <= 0 || maxDropped > 1 {
		maxDropped = defaultMaxDroppedRatio
	}
	return &Cache{
		log:        log.With("service", "RecommendationCache"),
		store:      store,
		ttl:        ttl,
		maxDropped: maxDropped,
		collapse:   cfg.CollapseMisses,
		metrics:    m,
	}
}

// Get returns a stored response. Backend and decode errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) (*recommend.Response, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
		c.metrics.IncCache("get", "error")
		return nil, false
	}
	if !ok {
		c.metrics.IncCache("get", "miss")
		return nil, false
	}
	var resp recommend.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn("cache entry undecodable", "key", key, "error", err)
		c.metrics.IncCache("get", "error")
		return nil, false
	}
	c.metrics.IncCache("get", "hit")
	return &resp, true
}

// ShouldCache admits only externally ranked responses with items. Responses whose
// validator dropped more than the configured share of provider items are not stored,
// so a partially fabricated ranking is recomputed next time instead of replayed.
func (c *Cache) ShouldCache(resp *recommend.Response, droppedRatio float64) bool {
	if c == nil || resp == nil || resp.Meta.Busy || len(resp.Items) == 0 {
		return false
	}
	switch resp.Source() {
	case recommend.SourceExternal, recommend.SourceHybrid:
	default:
		return false
	}
	return droppedRatio <= c.maxDropped
}

// Put stores resp tagged by its user and every problem it lists.
func (c *Cache) Put(ctx context.Context, key string, resp *recommend.Response, userID uuid.UUID) {
	if c == nil || c.store == nil || resp == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		c.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	tags := make([]string, 0, len(resp.Items)+1)
	tags = append(tags, UserTag(userID))
	for _, it := range resp.Items {
		tags = append(tags, ProblemTag(it.ProblemID))
	}
	if err := c.store.Set(ctx, key, raw, c.ttl, tags); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
		c.metrics.IncCache("put", "error")
		return
	}
	c.metrics.IncCache("put", "ok")
}

func (c *Cache) InvalidateUser(ctx context.Context, userID uuid.UUID, trigger string) (int, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	n, err := c.store.InvalidateTag(ctx, UserTag(userID))
	if err != nil {
		c.log.Warn("cache invalidation failed", "user_id", userID.String(), "trigger", trigger, "error", err)
		return 0, err
	}
	c.metrics.AddCacheInvalidations("user", trigger, n)
	c.log.Debug("cache invalidated", "user_id", userID.String(), "trigger", trigger, "keys", n)
	return n, nil
}

func (c *Cache) InvalidateProblems(ctx context.Context, problemIDs []int64, trigger string) (int, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	total := 0
	for _, id := range problemIDs {
		n, err := c.store.InvalidateTag(ctx, ProblemTag(id))
		if err != nil {
			c.log.Warn("cache invalidation failed", "problem_id", id, "trigger", trigger, "error", err)
			return total, err
		}
		total += n
	}
	c.metrics.AddCacheInvalidations("problem", trigger, total)
	return total, nil
}

// Collapse runs fn once for concurrent callers with the same key when miss collapsing is
// enabled. Shared callers each receive their own copy of the response.
func (c *Cache) Collapse(key string, fn func() (*recommend.Response, error)) (*recommend.Response, error) {
	if c == nil || !c.collapse {
		return fn()
	}
	v, err, shared := c.group.Do(key, func() (interface{}, error) { return fn() })
	if err != nil {
		return nil, err
	}
	resp, _ := v.(*recommend.Response)
	if shared && resp != nil {
		c.metrics.IncCache("collapse", "shared")
		return cloneResponse(resp), nil
	}
	return resp, nil
}

func cloneResponse(r *recommend.Response) *recommend.Response {
	out := *r
	out.Items = append([]recommend.RecommendationItem(nil), r.Items...)
	out.Meta.ChainHops = append([]string(nil), r.Meta.ChainHops...)
	return &out
}
