// Package candidate builds the scheduler-backed problem pool, scores it and produces the
// scheduler-only fallback ranking.
package candidate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	maxPool      = 60
	newRetention = 0.5
)

// PoolSize is the number of scheduler items requested for a given limit.
func PoolSize(limit int) int {
	return minInt(maxPool, limit*3)
}

type Builder struct {
	log       *logger.Logger
	scheduler recommend.Scheduler
	meta      recommend.MetadataStore
	now       func() time.Time
}

func NewBuilder(log *logger.Logger, scheduler recommend.Scheduler, meta recommend.MetadataStore) *Builder {
	return &Builder{
		log:       log.With("component", "CandidateBuilder"),
		scheduler: scheduler,
		meta:      meta,
		now:       time.Now,
	}
}

// Build fetches due and new items and merges problem metadata into candidates.
// A scheduler failure is returned as is; metadata failures degrade to bare candidates.
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, limit int) ([]recommend.ProblemCandidate, error) {
	if b.scheduler == nil {
		return nil, fmt.Errorf("candidate builder: scheduler not configured")
	}
	items, err := b.scheduler.DueAndNew(ctx, userID, PoolSize(limit))
	if err != nil {
		return nil, fmt.Errorf("scheduler due and new: %w", err)
	}
	if len(items) > PoolSize(limit) {
		items = items[:PoolSize(limit)]
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProblemID)
	}
	var metas map[int64]recommend.ProblemMeta
	if b.meta != nil {
		metas, err = b.meta.TagsAndDifficulty(ctx, ids)
		if err != nil {
			b.log.Warn("metadata lookup failed; continuing without tags", "user_id", userID, "error", err)
			metas = nil
		}
	}

	now := b.now()
	out := make([]recommend.ProblemCandidate, 0, len(items))
	for _, it := range items {
		out = append(out, b.fromScheduled(it, metas[it.ProblemID], now))
	}
	return out, nil
}

func (b *Builder) fromScheduled(it recommend.ScheduledItem, meta recommend.ProblemMeta, now time.Time) recommend.ProblemCandidate {
	retention := it.Retrievability
	if it.IsNew {
		retention = newRetention
	}
	retention = recommend.Clamp01(retention)

	var overdue float64
	if !it.IsNew && !it.DueAt.IsZero() && now.After(it.DueAt) {
		overdue = now.Sub(it.DueAt).Hours() / 24
	}

	acc := it.Accuracy
	if it.Attempts == 0 {
		acc = EstimateAccuracy(it)
	}

	diff := meta.Difficulty
	if diff.Band() < 0 {
		diff = recommend.DifficultyMedium
	}

	return recommend.ProblemCandidate{
		ProblemID:      it.ProblemID,
		Title:          meta.Title,
		Topic:          meta.Topic,
		Tags:           meta.Tags,
		Difficulty:     diff,
		Urgency:        Urgency(retention, overdue),
		Retention:      retention,
		DaysOverdue:    overdue,
		RecentAccuracy: recommend.Clamp01(acc),
		Attempts:       it.Attempts,
		IsNew:          it.IsNew,
	}
}

func Urgency(retention, daysOverdue float64) float64 {
	return recommend.Clamp01(0.7*(1-retention) + 0.3*math.Min(daysOverdue/7, 1))
}

// EstimateAccuracy derives an expected accuracy from FSRS card state when the user has no attempts.
func EstimateAccuracy(it recommend.ScheduledItem) float64 {
	acc := 0.3 +
		math.Min(it.Stability/30, 1)*0.7 -
		math.Min(it.Difficulty/10, 0.5) +
		math.Min(float64(it.Reviews)*0.02, 0.2) -
		math.Min(float64(it.Lapses)*0.1, 0.4)
	return recommend.Clamp01(acc)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
