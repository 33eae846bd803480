package recommendation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewLog is one graded review. Rating follows FSRS: 1 again, 2 hard, 3 good, 4 easy.
type ReviewLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_review_user_time,priority:1" json:"user_id"`
	ProblemID  int64     `gorm:"not null;index" json:"problem_id"`
	Rating     int       `gorm:"column:rating;not null" json:"rating"`
	ReviewedAt time.Time `gorm:"column:reviewed_at;not null;index:idx_review_user_time,priority:2" json:"reviewed_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (ReviewLog) TableName() string { return "review_log" }

func (r *ReviewLog) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
