// Package recommendation holds the tables the recommender reads and writes.
// Defaults are applied in Go so the same models migrate on postgres and sqlite.
package recommendation

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Problem is the practice problem catalogue. Only the fields the recommender needs are mapped.
type Problem struct {
	ID         int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Topic      string         `gorm:"column:topic;index" json:"topic"`
	Tags       datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	Difficulty string         `gorm:"column:difficulty;not null;default:'MEDIUM'" json:"difficulty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (Problem) TableName() string { return "problem" }

// TagList decodes Tags; malformed JSON yields nil.
func (p *Problem) TagList() []string {
	if p == nil || len(p.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(p.Tags, &tags); err != nil {
		return nil
	}
	return tags
}
