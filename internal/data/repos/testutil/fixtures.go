package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-recommender/internal/domain/recommendation"
)

func SeedProblem(tb testing.TB, db *gorm.DB, id int64, title, topic, difficulty string, tags ...string) *types.Problem {
	tb.Helper()
	raw, _ := json.Marshal(tags)
	p := &types.Problem{
		ID:         id,
		Title:      title,
		Topic:      topic,
		Tags:       datatypes.JSON(raw),
		Difficulty: difficulty,
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed problem: %v", err)
	}
	return p
}

func SeedCard(tb testing.TB, db *gorm.DB, card *types.UserProblemCard) *types.UserProblemCard {
	tb.Helper()
	if err := db.Create(card).Error; err != nil {
		tb.Fatalf("seed card: %v", err)
	}
	return card
}

func SeedReview(tb testing.TB, db *gorm.DB, userID uuid.UUID, problemID int64, rating int, at time.Time) *types.ReviewLog {
	tb.Helper()
	r := &types.ReviewLog{UserID: userID, ProblemID: problemID, Rating: rating, ReviewedAt: at}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("seed review: %v", err)
	}
	return r
}

func PtrTime(t time.Time) *time.Time { return &t }
