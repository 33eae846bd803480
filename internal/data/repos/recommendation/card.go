package recommendation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-recommender/internal/domain/recommendation"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/profile"
)

// CardScheduler serves due cards first, then unseen cards, then catalogue problems the
// user has no card for.
type CardScheduler struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewCardScheduler(db *gorm.DB, baseLog *logger.Logger) *CardScheduler {
	return &CardScheduler{db: db, log: baseLog.With("repo", "CardScheduler"), now: time.Now}
}

func (s *CardScheduler) DueAndNew(ctx context.Context, userID uuid.UUID, count int) ([]recommend.ScheduledItem, error) {
	if count <= 0 {
		return nil, nil
	}
	now := s.now().UTC()
	t := s.db.WithContext(ctx)

	var due []*types.UserProblemCard
	if err := t.
		Where("user_id = ? AND state <> ? AND due_at IS NOT NULL AND due_at <= ?", userID, types.CardStateNew, now).
		Order("due_at ASC").
		Limit(count).
		Find(&due).Error; err != nil {
		return nil, err
	}

	out := make([]recommend.ScheduledItem, 0, count)
	for _, c := range due {
		out = append(out, s.toItem(c, now))
	}

	if remaining := count - len(out); remaining > 0 {
		var fresh []*types.UserProblemCard
		if err := t.
			Where("user_id = ? AND state = ?", userID, types.CardStateNew).
			Order("created_at ASC, problem_id ASC").
			Limit(remaining).
			Find(&fresh).Error; err != nil {
			return nil, err
		}
		for _, c := range fresh {
			out = append(out, s.toItem(c, now))
		}
	}

	if remaining := count - len(out); remaining > 0 {
		var ids []int64
		seen := s.db.Model(&types.UserProblemCard{}).Select("problem_id").Where("user_id = ?", userID)
		if err := t.Model(&types.Problem{}).
			Where("id NOT IN (?)", seen).
			Order("id ASC").
			Limit(remaining).
			Pluck("id", &ids).Error; err != nil {
			return nil, err
		}
		for _, id := range ids {
			out = append(out, recommend.ScheduledItem{ProblemID: id, IsNew: true, Retrievability: 1})
		}
	}
	return out, nil
}

func (s *CardScheduler) toItem(c *types.UserProblemCard, now time.Time) recommend.ScheduledItem {
	it := recommend.ScheduledItem{
		ProblemID:      c.ProblemID,
		IsNew:          c.State == types.CardStateNew,
		Retrievability: profile.Retrievability(c.Stability, c.LastReview, now),
		Stability:      c.Stability,
		Difficulty:     c.Difficulty,
		Reviews:        c.Reps,
		Lapses:         c.Lapses,
		Attempts:       c.Attempts,
	}
	if c.DueAt != nil {
		it.DueAt = *c.DueAt
	}
	if c.Attempts > 0 {
		it.Accuracy = float64(c.Correct) / float64(c.Attempts)
	}
	return it
}
