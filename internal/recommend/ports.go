package recommend

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduledItem is a due or new card as reported by the spaced-repetition scheduler.
type ScheduledItem struct {
	ProblemID      int64
	IsNew          bool
	Retrievability float64
	DueAt          time.Time
	Stability      float64
	Difficulty     float64
	Reviews        int
	Lapses         int
	Attempts       int
	Accuracy       float64
}

type ProblemMeta struct {
	ProblemID  int64
	Title      string
	Topic      string
	Tags       []string
	Difficulty Difficulty
}

type LearningPattern string

const (
	PatternStruggling     LearningPattern = "STRUGGLING"
	PatternSteadyProgress LearningPattern = "STEADY_PROGRESS"
	PatternAdvanced       LearningPattern = "ADVANCED"
)

type ProfileSummary struct {
	WeakDomains            []string
	StrongDomains          []string
	DomainMastery          map[string]float64
	OverallMastery         float64
	DifficultyDistribution map[Difficulty]float64
	TypicalDifficulty      Difficulty
	TotalReviews           int
	ProblemsReviewed       int
	AverageAccuracy        float64
	LastReviewAt           time.Time
	Pattern                LearningPattern

	// TagAffinity is recency-weighted exposure per lowercased tag, scaled so the
	// most practised tag is 1.
	TagAffinity map[string]float64

	// DataQuality is filled in by the ranker's configured quality function.
	DataQuality float64
}

type FeedbackAction string

const (
	FeedbackAccepted FeedbackAction = "accepted"
	FeedbackSkipped  FeedbackAction = "skipped"
	FeedbackSolved   FeedbackAction = "solved"
	FeedbackHidden   FeedbackAction = "hidden"
)

type Feedback struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RecommendationID string
	ProblemID        int64
	Action           FeedbackAction
	Helpful          *bool
	Rating           *int
	Comment          string
	CreatedAt        time.Time
}

type Scheduler interface {
	DueAndNew(ctx context.Context, userID uuid.UUID, count int) ([]ScheduledItem, error)
}

type MetadataStore interface {
	TagsAndDifficulty(ctx context.Context, problemIDs []int64) (map[int64]ProblemMeta, error)
}

type ProfileService interface {
	ProfileSummary(ctx context.Context, userID uuid.UUID) (ProfileSummary, error)
}

type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb *Feedback) error
}
