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

const (
	profileWindow     = 90 * 24 * time.Hour
	profileMaxReviews = 500
)

// DomainFunc maps a problem topic and tags onto canonical domains.
type DomainFunc func(topic string, tags []string) []string

// ProfileRepo builds learner profiles from the review log.
type ProfileRepo struct {
	db       *gorm.DB
	log      *logger.Logger
	problems ProblemRepo
	domains  DomainFunc
	now      func() time.Time
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger, problems ProblemRepo, domains DomainFunc) *ProfileRepo {
	return &ProfileRepo{
		db:       db,
		log:      baseLog.With("repo", "ProfileRepo"),
		problems: problems,
		domains:  domains,
		now:      time.Now,
	}
}

func (r *ProfileRepo) ProfileSummary(ctx context.Context, userID uuid.UUID) (recommend.ProfileSummary, error) {
	now := r.now().UTC()
	t := r.db.WithContext(ctx)

	var logs []*types.ReviewLog
	if err := t.
		Where("user_id = ? AND reviewed_at >= ?", userID, now.Add(-profileWindow)).
		Order("reviewed_at DESC").
		Limit(profileMaxReviews).
		Find(&logs).Error; err != nil {
		return recommend.ProfileSummary{}, err
	}
	if len(logs) == 0 {
		return profile.Default(), nil
	}

	idSet := map[int64]bool{}
	ids := make([]int64, 0, len(logs))
	for _, l := range logs {
		if !idSet[l.ProblemID] {
			idSet[l.ProblemID] = true
			ids = append(ids, l.ProblemID)
		}
	}

	problems, err := r.problems.GetByIDs(ctx, ids)
	if err != nil {
		return recommend.ProfileSummary{}, err
	}
	byID := make(map[int64]*types.Problem, len(problems))
	for _, p := range problems {
		byID[p.ID] = p
	}

	var cards []*types.UserProblemCard
	if err := t.Where("user_id = ? AND problem_id IN ?", userID, ids).Find(&cards).Error; err != nil {
		return recommend.ProfileSummary{}, err
	}
	cardByID := make(map[int64]*types.UserProblemCard, len(cards))
	for _, c := range cards {
		cardByID[c.ProblemID] = c
	}

	reviews := make([]profile.Review, 0, len(logs))
	for _, l := range logs {
		rv := profile.Review{ProblemID: l.ProblemID, Rating: l.Rating, ReviewedAt: l.ReviewedAt, Retention: -1}
		if p, ok := byID[l.ProblemID]; ok {
			rv.Tags = p.TagList()
			rv.Domains = r.domains(p.Topic, rv.Tags)
			rv.Difficulty, _ = recommend.ParseDifficulty(p.Difficulty)
		}
		if c, ok := cardByID[l.ProblemID]; ok {
			rv.Retention = profile.Retrievability(c.Stability, c.LastReview, now)
			rv.Lapses = c.Lapses
			rv.Reps = c.Reps
		}
		reviews = append(reviews, rv)
	}
	return profile.Summarize(reviews, now), nil
}
