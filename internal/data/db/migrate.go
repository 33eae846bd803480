package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-recommender/internal/domain/recommendation"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Catalogue + scheduler state read by the candidate builder
		&types.Problem{},
		&types.UserProblemCard{},
		&types.ReviewLog{},

		// Write path
		&types.RecommendationFeedback{},
	)
}
