// Package recommend holds the shared model of the recommendation pipeline:
// request context, candidates, provider output, final items and response meta.
package recommend

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 50

	DefaultRoute = "ai-recommendations"
	DefaultTier  = "BRONZE"
)

type Objective string

const (
	ObjectiveWeaknessFocus         Objective = "weakness_focus"
	ObjectiveProgressiveDifficulty Objective = "progressive_difficulty"
	ObjectiveTopicCoverage         Objective = "topic_coverage"
	ObjectiveExamPrep              Objective = "exam_prep"
	ObjectiveRefreshMastered       Objective = "refresh_mastered"
)

func ParseObjective(s string) (Objective, bool) {
	switch o := Objective(strings.ToLower(strings.TrimSpace(s))); o {
	case ObjectiveWeaknessFocus, ObjectiveProgressiveDifficulty, ObjectiveTopicCoverage, ObjectiveExamPrep, ObjectiveRefreshMastered:
		return o, true
	default:
		return "", false
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, true
	default:
		return "", false
	}
}

// Band maps a difficulty onto 0..2; unknown values return -1.
func (d Difficulty) Band() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	case DifficultyHard:
		return 2
	default:
		return -1
	}
}

type RecommendationType string

const (
	TypeHybrid RecommendationType = "hybrid"
	TypeAI     RecommendationType = "ai"
	TypeFSRS   RecommendationType = "fsrs"
)

func ParseType(s string) (RecommendationType, bool) {
	switch t := RecommendationType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeHybrid, TypeAI, TypeFSRS:
		return t, true
	default:
		return "", false
	}
}

type Source string

const (
	SourceExternal Source = "EXTERNAL"
	SourceInternal Source = "INTERNAL"
	SourceHybrid   Source = "HYBRID"
	SourceDefault  Source = "DEFAULT"
)

// Strategy labels attached to every recommendation item.
const (
	StrategyWeaknessFocus         = "weakness_focus"
	StrategyProgressiveDifficulty = "progressive_difficulty"
	StrategyTopicCoverage         = "topic_coverage"
	StrategyReviewReinforcement   = "review_reinforcement"
)

func IsKnownStrategy(s string) bool {
	switch s {
	case StrategyWeaknessFocus, StrategyProgressiveDifficulty, StrategyTopicCoverage, StrategyReviewReinforcement:
		return true
	default:
		return false
	}
}

type RequestContext struct {
	UserID         uuid.UUID
	Tier           string
	ABGroup        string
	Route          string
	Objective      Objective
	Domains        []string
	Difficulty     Difficulty
	TimeboxMinutes int
	ForceRefresh   bool
	TraceID        string
	Limit          int
	Type           RecommendationType
}

type ProblemCandidate struct {
	ProblemID      int64
	Title          string
	Topic          string
	Tags           []string
	Domains        []string
	Difficulty     Difficulty
	Urgency        float64
	Retention      float64
	DaysOverdue    float64
	RecentAccuracy float64
	Attempts       int
	IsNew          bool

	// Filled by the enhancer.
	Similarity     float64
	DifficultyFit  float64
	DomainAffinity float64
	PreScore       float64
}

// RankedItem is a single entry of provider output before validation.
type RankedItem struct {
	ProblemID  int64   `json:"problemId"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
	Score      float64 `json:"score"`
}

type RecommendationItem struct {
	ProblemID       int64   `json:"problemId"`
	Title           string  `json:"title,omitempty"`
	Reason          string  `json:"reason"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidenceLevel,omitempty"`
	Strategy        string  `json:"strategy"`
	Source          Source  `json:"source"`
	Score           float64 `json:"score"`
}

type Meta struct {
	TraceID            string    `json:"traceId"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Cached             bool      `json:"cached"`
	ChainID            string    `json:"chainId,omitempty"`
	ChainVersion       string    `json:"chainVersion,omitempty"`
	PolicyID           string    `json:"policyId,omitempty"`
	PromptVersion      string    `json:"promptVersion,omitempty"`
	Strategy           string    `json:"strategy,omitempty"`
	Busy               bool      `json:"busy"`
	Message            string    `json:"message,omitempty"`
	TerminalStatus     int       `json:"terminalStatus,omitempty"`
	FallbackReason     string    `json:"fallbackReason,omitempty"`
	ChainHops          []string  `json:"chainHops"`
	FinalProvider      string    `json:"finalProvider,omitempty"`
	DroppedItems       int       `json:"droppedItems,omitempty"`
	RecommendationType string    `json:"recommendationType,omitempty"`
	UserProfileSummary string    `json:"userProfileSummary,omitempty"`
}

type Response struct {
	Items []RecommendationItem `json:"items"`
	Meta  Meta                 `json:"meta"`
}

// Source reports the dominant source of the response for headers and metrics.
func (r *Response) Source() Source {
	if r == nil {
		return SourceDefault
	}
	if r.Meta.Busy || len(r.Items) == 0 {
		return SourceDefault
	}
	return r.Items[0].Source
}

func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConfidenceLevel buckets a calibrated confidence for display.
func ConfidenceLevel(c float64) string {
	switch {
	case c >= 0.8:
		return "high"
	case c >= 0.6:
		return "medium"
	case c >= 0.4:
		return "low"
	default:
		return "very_low"
	}
}
