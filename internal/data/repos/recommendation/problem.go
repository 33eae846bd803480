// Package recommendation adapts the gorm tables to the collaborator interfaces of the
// recommendation pipeline.
package recommendation

import (
	"context"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-recommender/internal/domain/recommendation"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

type ProblemRepo interface {
	recommend.MetadataStore
	GetByIDs(ctx context.Context, ids []int64) ([]*types.Problem, error)
}

type problemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProblemRepo(db *gorm.DB, baseLog *logger.Logger) ProblemRepo {
	return &problemRepo{db: db, log: baseLog.With("repo", "ProblemRepo")}
}

func (r *problemRepo) GetByIDs(ctx context.Context, ids []int64) ([]*types.Problem, error) {
	var out []*types.Problem
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *problemRepo) TagsAndDifficulty(ctx context.Context, ids []int64) (map[int64]recommend.ProblemMeta, error) {
	rows, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]recommend.ProblemMeta, len(rows))
	for _, p := range rows {
		diff, ok := recommend.ParseDifficulty(p.Difficulty)
		if !ok {
			r.log.Debug("unknown problem difficulty", "problem_id", p.ID, "difficulty", p.Difficulty)
		}
		out[p.ID] = recommend.ProblemMeta{
			ProblemID:  p.ID,
			Title:      p.Title,
			Topic:      strings.TrimSpace(p.Topic),
			Tags:       p.TagList(),
			Difficulty: diff,
		}
	}
	return out, nil
}
