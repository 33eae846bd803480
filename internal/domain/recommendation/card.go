package recommendation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CardStateNew        = "NEW"
	CardStateLearning   = "LEARNING"
	CardStateReview     = "REVIEW"
	CardStateRelearning = "RELEARNING"
)

// UserProblemCard is the spaced-repetition state of one problem for one user.
type UserProblemCard struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_card_user_problem,unique,priority:1;index:idx_card_user_due,priority:1" json:"user_id"`
	ProblemID  int64      `gorm:"not null;index:idx_card_user_problem,unique,priority:2" json:"problem_id"`
	State      string     `gorm:"column:state;not null;default:'NEW'" json:"state"`
	Stability  float64    `gorm:"column:stability;not null;default:0" json:"stability"`
	Difficulty float64    `gorm:"column:difficulty;not null;default:0" json:"difficulty"`
	Reps       int        `gorm:"column:reps;not null;default:0" json:"reps"`
	Lapses     int        `gorm:"column:lapses;not null;default:0" json:"lapses"`
	Attempts   int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Correct    int        `gorm:"column:correct;not null;default:0" json:"correct"`
	LastReview *time.Time `gorm:"column:last_review" json:"last_review,omitempty"`
	DueAt      *time.Time `gorm:"column:due_at;index:idx_card_user_due,priority:2" json:"due_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (UserProblemCard) TableName() string { return "user_problem_card" }

func (c *UserProblemCard) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.State == "" {
		c.State = CardStateNew
	}
	return nil
}
