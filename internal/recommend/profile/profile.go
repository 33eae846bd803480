// Package profile summarizes a learner's recent review history into the profile the
// ranking pipeline consumes.
package profile

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	halfLifeDays  = 30.0
	minSkillCount = 2
	maxListed     = 3

	weakBelow   = 0.5
	strongAbove = 0.7
)

// Review is one graded review joined with what the profile needs about its problem.
type Review struct {
	ProblemID  int64
	Rating     int
	ReviewedAt time.Time
	Domains    []string
	Tags       []string
	Difficulty recommend.Difficulty
	// Retention is the card's current retrievability, or a negative value when unknown.
	Retention float64
	Lapses    int
	Reps      int
}

type skill struct {
	weight    float64
	success   float64
	retention float64
	retWeight float64
	lapses    int
	reps      int
	samples   int
}

func (s *skill) score() float64 {
	acc := (s.success + 1) / (s.weight + 2)
	ret := 0.6
	if s.retWeight > 0 {
		ret = s.retention / s.retWeight
	}
	lapseRate := 0.2
	if s.reps > 0 {
		lapseRate = math.Min(1, float64(s.lapses)/float64(s.reps))
	}
	return recommend.Clamp01(0.6*acc + 0.25*ret + 0.15*(1-lapseRate))
}

// Default is returned for users without history.
func Default() recommend.ProfileSummary {
	return recommend.ProfileSummary{
		DomainMastery:  map[string]float64{},
		OverallMastery: 0.5,
		DifficultyDistribution: map[recommend.Difficulty]float64{
			recommend.DifficultyEasy:   0.3,
			recommend.DifficultyMedium: 0.5,
			recommend.DifficultyHard:   0.2,
		},
		TypicalDifficulty: recommend.DifficultyMedium,
		AverageAccuracy:   0.5,
		Pattern:           recommend.PatternSteadyProgress,
		TagAffinity:       map[string]float64{},
	}
}

// Summarize weights every review by recency (30 day half-life) and derives per-domain
// mastery, weak and strong domains, the difficulty mix and the learning pattern.
func Summarize(reviews []Review, now time.Time) recommend.ProfileSummary {
	if len(reviews) == 0 {
		return Default()
	}

	skills := map[string]*skill{}
	diffCounts := map[recommend.Difficulty]int{}
	problems := map[int64]bool{}
	tagWeights := map[string]float64{}
	tagSeen := map[string]bool{}
	successes := 0
	var last time.Time

	for _, r := range reviews {
		days := math.Max(0, now.Sub(r.ReviewedAt).Hours()/24)
		w := math.Exp(-days / halfLifeDays)
		ok := 0.0
		if r.Rating >= 3 {
			ok = 1
			successes++
		}
		if r.ReviewedAt.After(last) {
			last = r.ReviewedAt
		}
		if r.Difficulty.Band() >= 0 {
			diffCounts[r.Difficulty]++
		}
		firstSeen := !problems[r.ProblemID]
		problems[r.ProblemID] = true

		// each (problem, tag) pair counts once, at its first weight seen
		for _, tag := range r.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			pair := strconv.FormatInt(r.ProblemID, 10) + "|" + tag
			if tag == "" || tagSeen[pair] {
				continue
			}
			tagSeen[pair] = true
			tagWeights[tag] += w
		}

		for _, d := range r.Domains {
			s, found := skills[d]
			if !found {
				s = &skill{}
				skills[d] = s
			}
			s.weight += w
			s.success += w * ok
			s.samples++
			if r.Retention >= 0 {
				s.retention += w * r.Retention
				s.retWeight += w
			}
			if firstSeen {
				s.lapses += r.Lapses
				s.reps += r.Reps
			}
		}
	}

	out := recommend.ProfileSummary{
		DomainMastery:          make(map[string]float64, len(skills)),
		DifficultyDistribution: map[recommend.Difficulty]float64{},
		TotalReviews:           len(reviews),
		ProblemsReviewed:       len(problems),
		AverageAccuracy:        (float64(successes) + 1) / (float64(len(reviews)) + 2),
		LastReviewAt:           last,
		TagAffinity:            make(map[string]float64, len(tagWeights)),
	}
	maxTag := 0.0
	for _, w := range tagWeights {
		maxTag = math.Max(maxTag, w)
	}
	for tag, w := range tagWeights {
		out.TagAffinity[tag] = w / maxTag
	}

	type scored struct {
		domain string
		score  float64
	}
	var ranked []scored
	var total, weighted float64
	for d, s := range skills {
		sc := s.score()
		out.DomainMastery[d] = sc
		w := math.Max(1, float64(s.samples))
		total += w
		weighted += w * sc
		if s.samples >= minSkillCount {
			ranked = append(ranked, scored{d, sc})
		}
	}
	out.OverallMastery = 0.5
	if total > 0 {
		out.OverallMastery = weighted / total
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].domain < ranked[j].domain
	})
	for _, s := range ranked {
		if s.score < weakBelow && len(out.WeakDomains) < maxListed {
			out.WeakDomains = append(out.WeakDomains, s.domain)
		}
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].score >= strongAbove && len(out.StrongDomains) < maxListed {
			out.StrongDomains = append(out.StrongDomains, ranked[i].domain)
		}
	}

	n := 0
	for _, c := range diffCounts {
		n += c
	}
	if n == 0 {
		def := Default()
		out.DifficultyDistribution = def.DifficultyDistribution
		out.TypicalDifficulty = def.TypicalDifficulty
	} else {
		best := recommend.DifficultyMedium
		for _, d := range []recommend.Difficulty{recommend.DifficultyEasy, recommend.DifficultyMedium, recommend.DifficultyHard} {
			out.DifficultyDistribution[d] = float64(diffCounts[d]) / float64(n)
			if diffCounts[d] > diffCounts[best] {
				best = d
			}
		}
		out.TypicalDifficulty = best
	}

	out.Pattern = Pattern(out.OverallMastery)
	return out
}

func Pattern(mastery float64) recommend.LearningPattern {
	switch {
	case mastery < 0.4:
		return recommend.PatternStruggling
	case mastery > 0.7:
		return recommend.PatternAdvanced
	default:
		return recommend.PatternSteadyProgress
	}
}

// Retrievability is the exponential forgetting curve R = 0.9^(elapsedDays/stability).
// Cards never reviewed are fully retrievable.
func Retrievability(stability float64, lastReview *time.Time, now time.Time) float64 {
	if lastReview == nil || lastReview.IsZero() {
		return 1
	}
	if stability <= 0 {
		return 0
	}
	days := math.Floor(math.Max(0, now.Sub(*lastReview).Hours()/24))
	return recommend.Clamp01(math.Pow(0.9, days/stability))
}
