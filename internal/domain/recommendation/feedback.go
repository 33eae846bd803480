package recommendation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecommendationFeedback is kept for later calibration tuning.
type RecommendationFeedback struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	RecommendationID string         `gorm:"column:recommendation_id;not null;index" json:"recommendation_id"`
	ProblemID        int64          `gorm:"not null;index" json:"problem_id"`
	Action           string         `gorm:"column:action;not null" json:"action"`
	Helpful          *bool          `gorm:"column:helpful" json:"helpful,omitempty"`
	Rating           *int           `gorm:"column:rating" json:"rating,omitempty"`
	Comment          string         `gorm:"column:comment;type:text" json:"comment,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RecommendationFeedback) TableName() string { return "recommendation_feedback" }

func (f *RecommendationFeedback) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
