package profile

import (
	"math"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

func TestSummarizeEmptyIsDefault(t *testing.T) {
	p := Summarize(nil, time.Now())
	if p.OverallMastery != 0.5 || p.TypicalDifficulty != recommend.DifficultyMedium || p.Pattern != recommend.PatternSteadyProgress {
		t.Fatalf("profile=%+v", p)
	}
}

func TestSummarizeWeakAndStrongDomains(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var reviews []Review
	for i := 0; i < 6; i++ {
		reviews = append(reviews,
			Review{ProblemID: int64(100 + i), Rating: 1, ReviewedAt: now.Add(-time.Duration(i) * time.Hour), Domains: []string{"graphs"}, Difficulty: recommend.DifficultyHard, Retention: 0.3, Lapses: 2, Reps: 3},
			Review{ProblemID: int64(200 + i), Rating: 4, ReviewedAt: now.Add(-time.Duration(i) * time.Hour), Domains: []string{"arrays"}, Difficulty: recommend.DifficultyEasy, Retention: 0.95, Reps: 3},
			Review{ProblemID: int64(300 + i), Rating: 3, ReviewedAt: now.Add(-time.Duration(i) * time.Hour), Domains: []string{"arrays"}, Difficulty: recommend.DifficultyEasy, Retention: -1, Reps: 1},
		)
	}
	reviews = append(reviews, Review{ProblemID: 999, Rating: 1, ReviewedAt: now, Domains: []string{"trees"}, Retention: -1})

	p := Summarize(reviews, now)
	if len(p.WeakDomains) != 1 || p.WeakDomains[0] != "graphs" {
		t.Fatalf("weak=%v (trees has a single sample and must not be listed)", p.WeakDomains)
	}
	if len(p.StrongDomains) != 1 || p.StrongDomains[0] != "arrays" {
		t.Fatalf("strong=%v", p.StrongDomains)
	}
	if p.TypicalDifficulty != recommend.DifficultyEasy {
		t.Fatalf("typical=%s", p.TypicalDifficulty)
	}
	if p.TotalReviews != len(reviews) || !p.LastReviewAt.Equal(now) {
		t.Fatalf("totals=%d last=%v", p.TotalReviews, p.LastReviewAt)
	}
	var sum float64
	for _, v := range p.DifficultyDistribution {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("distribution sums to %v", sum)
	}
	if p.DomainMastery["graphs"] >= p.DomainMastery["arrays"] {
		t.Fatalf("mastery=%v", p.DomainMastery)
	}
}

func TestSummarizeTagAffinityAndAccuracy(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	reviews := []Review{
		{ProblemID: 1, Rating: 4, ReviewedAt: now, Tags: []string{"Array", "Hash Table"}, Retention: -1},
		{ProblemID: 1, Rating: 1, ReviewedAt: now, Tags: []string{"array", "hash table"}, Retention: -1},
		{ProblemID: 2, Rating: 3, ReviewedAt: now.Add(-30 * 24 * time.Hour), Tags: []string{"array"}, Retention: -1},
	}

	p := Summarize(reviews, now)
	if p.TagAffinity["array"] != 1 {
		t.Fatalf("most practised tag should be 1, got %v", p.TagAffinity)
	}
	want := 1 / (1 + math.Exp(-1))
	if got := p.TagAffinity["hash table"]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("hash table affinity=%v want %v", got, want)
	}
	if p.ProblemsReviewed != 2 {
		t.Fatalf("problems reviewed=%d", p.ProblemsReviewed)
	}
	if math.Abs(p.AverageAccuracy-0.6) > 1e-9 {
		t.Fatalf("smoothed accuracy=%v", p.AverageAccuracy)
	}
	if d := Default(); d.TagAffinity == nil || d.AverageAccuracy != 0.5 {
		t.Fatalf("default profile=%+v", d)
	}
}

func TestPattern(t *testing.T) {
	cases := map[float64]recommend.LearningPattern{
		0.2: recommend.PatternStruggling,
		0.5: recommend.PatternSteadyProgress,
		0.7: recommend.PatternSteadyProgress,
		0.8: recommend.PatternAdvanced,
	}
	for m, want := range cases {
		if got := Pattern(m); got != want {
			t.Fatalf("mastery=%v got=%s want=%s", m, got, want)
		}
	}
}

func TestRetrievability(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	if Retrievability(5, nil, now) != 1 {
		t.Fatalf("new cards are fully retrievable")
	}
	last := now.Add(-10 * 24 * time.Hour)
	if got := Retrievability(10, &last, now); math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("got %v", got)
	}
	if Retrievability(0, &last, now) != 0 {
		t.Fatalf("zero stability means forgotten")
	}
	recent := now.Add(-24 * time.Hour)
	if Retrievability(10, &recent, now) <= Retrievability(10, &last, now) {
		t.Fatalf("recent reviews must be more retrievable")
	}
}
