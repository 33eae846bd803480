package recommendation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-recommender/internal/domain/recommendation"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

type FeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) *FeedbackRepo {
	return &FeedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

func (r *FeedbackRepo) SaveFeedback(ctx context.Context, fb *recommend.Feedback) error {
	row := &types.RecommendationFeedback{
		ID:               fb.ID,
		UserID:           fb.UserID,
		RecommendationID: fb.RecommendationID,
		ProblemID:        fb.ProblemID,
		Action:           string(fb.Action),
		Helpful:          fb.Helpful,
		Rating:           fb.Rating,
		Comment:          fb.Comment,
		CreatedAt:        fb.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	fb.ID = row.ID
	fb.CreatedAt = row.CreatedAt
	return nil
}

func (r *FeedbackRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&types.RecommendationFeedback{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
