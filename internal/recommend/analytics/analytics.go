package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/rank"
)

const (
	summaryDomains = 3
	topTagCount    = 10
)

// Profile is the full learner profile as exposed over the API.
type Profile struct {
	UserID                 uuid.UUID                        `json:"userId"`
	GeneratedAt            time.Time                        `json:"generatedAt"`
	Cached                 bool                             `json:"cached"`
	DomainMastery          map[string]float64               `json:"domainMastery"`
	WeakDomains            []string                         `json:"weakDomains"`
	StrongDomains          []string                         `json:"strongDomains"`
	OverallMastery         float64                          `json:"overallMastery"`
	AverageAccuracy        float64                          `json:"averageAccuracy"`
	DifficultyDistribution map[recommend.Difficulty]float64 `json:"difficultyDistribution"`
	TypicalDifficulty      recommend.Difficulty             `json:"typicalDifficulty"`
	TagAffinity            map[string]float64               `json:"tagAffinity"`
	TotalReviews           int                              `json:"totalReviewAttempts"`
	ProblemsReviewed       int                              `json:"totalProblemsReviewed"`
	LastReviewAt           *time.Time                       `json:"lastReviewAt,omitempty"`
	LearningPattern        recommend.LearningPattern        `json:"learningPattern"`
	DataQuality            float64                          `json:"dataQuality"`
}

// Summary is the dashboard view. Ratios are percentages rounded to one decimal.
type Summary struct {
	UserID               uuid.UUID                 `json:"userId"`
	GeneratedAt          time.Time                 `json:"generatedAt"`
	OverallMastery       float64                   `json:"overallMastery"`
	AverageAccuracy      float64                   `json:"averageAccuracy"`
	LearningPattern      recommend.LearningPattern `json:"learningPattern"`
	ProblemsReviewed     int                       `json:"totalProblemsReviewed"`
	TotalReviews         int                       `json:"totalReviewAttempts"`
	StrongDomains        []string                  `json:"strongDomains"`
	WeakDomains          []string                  `json:"weakDomains"`
	DifficultyPreference DifficultyPreference      `json:"difficultyPreference"`
	DataQuality          float64                   `json:"dataQuality"`
}

type DifficultyPreference struct {
	Easy      float64              `json:"easy"`
	Medium    float64              `json:"medium"`
	Hard      float64              `json:"hard"`
	Preferred recommend.Difficulty `json:"preferredLevel"`
}

type Domains struct {
	UserID         uuid.UUID          `json:"userId"`
	DomainSkills   map[string]float64 `json:"domainSkills"`
	DomainCount    int                `json:"domainCount"`
	StrongDomains  []string           `json:"strongDomains"`
	WeakDomains    []string           `json:"weakDomains"`
	OverallMastery float64            `json:"overallMastery"`
}

type TagScore struct {
	Tag      string  `json:"tag"`
	Affinity float64 `json:"affinity"`
}

type TagAffinity struct {
	UserID      uuid.UUID          `json:"userId"`
	TagAffinity map[string]float64 `json:"tagAffinity"`
	TotalTags   int                `json:"totalTags"`
	// TopTags is ordered by affinity, highest first.
	TopTags []TagScore `json:"topTags"`
}

type Service struct {
	profiles *ProfileCache
	quality  config.DataQualityConfig
	now      func() time.Time
}

func NewService(profiles *ProfileCache, quality config.DataQualityConfig) *Service {
	return &Service{profiles: profiles, quality: quality, now: time.Now}
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID, useCache bool) (*Profile, error) {
	prof, cached, err := s.profiles.Load(ctx, userID, useCache)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := &Profile{
		UserID:                 userID,
		GeneratedAt:            now,
		Cached:                 cached,
		DomainMastery:          nonNilMap(prof.DomainMastery),
		WeakDomains:            nonNil(prof.WeakDomains),
		StrongDomains:          nonNil(prof.StrongDomains),
		OverallMastery:         prof.OverallMastery,
		AverageAccuracy:        prof.AverageAccuracy,
		DifficultyDistribution: prof.DifficultyDistribution,
		TypicalDifficulty:      prof.TypicalDifficulty,
		TagAffinity:            nonNilMap(prof.TagAffinity),
		TotalReviews:           prof.TotalReviews,
		ProblemsReviewed:       prof.ProblemsReviewed,
		LearningPattern:        prof.Pattern,
		DataQuality:            rank.DataQuality(s.quality, prof, now),
	}
	if !prof.LastReviewAt.IsZero() {
		t := prof.LastReviewAt
		out.LastReviewAt = &t
	}
	return out, nil
}

func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	p, err := s.Profile(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return &Summary{
		UserID:           userID,
		GeneratedAt:      p.GeneratedAt,
		OverallMastery:   percent(p.OverallMastery),
		AverageAccuracy:  percent(p.AverageAccuracy),
		LearningPattern:  p.LearningPattern,
		ProblemsReviewed: p.ProblemsReviewed,
		TotalReviews:     p.TotalReviews,
		StrongDomains:    head(p.StrongDomains, summaryDomains),
		WeakDomains:      head(p.WeakDomains, summaryDomains),
		DifficultyPreference: DifficultyPreference{
			Easy:      percent(p.DifficultyDistribution[recommend.DifficultyEasy]),
			Medium:    percent(p.DifficultyDistribution[recommend.DifficultyMedium]),
			Hard:      percent(p.DifficultyDistribution[recommend.DifficultyHard]),
			Preferred: p.TypicalDifficulty,
		},
		DataQuality: percent(p.DataQuality),
	}, nil
}

func (s *Service) Domains(ctx context.Context, userID uuid.UUID) (*Domains, error) {
	p, err := s.Profile(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return &Domains{
		UserID:         userID,
		DomainSkills:   p.DomainMastery,
		DomainCount:    len(p.DomainMastery),
		StrongDomains:  p.StrongDomains,
		WeakDomains:    p.WeakDomains,
		OverallMastery: p.OverallMastery,
	}, nil
}

func (s *Service) TagAffinity(ctx context.Context, userID uuid.UUID) (*TagAffinity, error) {
	p, err := s.Profile(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return &TagAffinity{
		UserID:      userID,
		TagAffinity: p.TagAffinity,
		TotalTags:   len(p.TagAffinity),
		TopTags:     TopTags(p.TagAffinity, topTagCount),
	}, nil
}

func (s *Service) InvalidateProfile(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.profiles.Invalidate(ctx, userID)
}

// TopTags ranks by affinity with ties broken by tag name.
func TopTags(affinity map[string]float64, n int) []TagScore {
	out := make([]TagScore, 0, len(affinity))
	for tag, a := range affinity {
		out = append(out, TagScore{Tag: tag, Affinity: a})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Affinity != out[j].Affinity {
			return out[i].Affinity > out[j].Affinity
		}
		return out[i].Tag < out[j].Tag
	})
	return head(out, n)
}

func percent(v float64) float64 {
	return math.Round(v*1000) / 10
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	if s == nil {
		return []T{}
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
