package analytics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

type fakeProfiles struct {
	calls atomic.Int32
	prof  recommend.ProfileSummary
	err   error
}

func (f *fakeProfiles) ProfileSummary(context.Context, uuid.UUID) (recommend.ProfileSummary, error) {
	f.calls.Add(1)
	return f.prof, f.err
}

func sampleProfile() recommend.ProfileSummary {
	return recommend.ProfileSummary{
		WeakDomains:    []string{"graphs", "dp", "trees", "math"},
		StrongDomains:  []string{"arrays"},
		DomainMastery:  map[string]float64{"graphs": 0.3, "arrays": 0.9},
		OverallMastery: 0.61234,
		DifficultyDistribution: map[recommend.Difficulty]float64{
			recommend.DifficultyEasy:   1.0 / 3,
			recommend.DifficultyMedium: 2.0 / 3,
		},
		TypicalDifficulty: recommend.DifficultyMedium,
		TotalReviews:      12,
		ProblemsReviewed:  9,
		AverageAccuracy:   0.5556,
		LastReviewAt:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Pattern:           recommend.PatternSteadyProgress,
		TagAffinity:       map[string]float64{"array": 1, "graph": 0.4},
	}
}

func TestProfileCacheHitsAndInvalidation(t *testing.T) {
	ctx := context.Background()
	src := &fakeProfiles{prof: sampleProfile()}
	store := cache.NewMemoryStore(100)
	pc := NewProfileCache(logger.Nop(), src, store, time.Hour)
	user := uuid.New()

	steps := []struct {
		name       string
		before     func()
		useCache   bool
		wantCached bool
		wantCalls  int32
	}{
		{name: "cold", useCache: true, wantCalls: 1},
		{name: "warm", useCache: true, wantCached: true, wantCalls: 1},
		{name: "bypass", useCache: false, wantCalls: 2},
		{name: "user tag drops profile", before: func() { _, _ = store.InvalidateTag(ctx, cache.UserTag(user)) }, useCache: true, wantCalls: 3},
		{name: "explicit invalidation", before: func() { _, _ = pc.Invalidate(ctx, user) }, useCache: true, wantCalls: 4},
	}
	for _, st := range steps {
		if st.before != nil {
			st.before()
		}
		prof, cached, err := pc.Load(ctx, user, st.useCache)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if cached != st.wantCached || src.calls.Load() != st.wantCalls {
			t.Fatalf("%s: cached=%v calls=%d", st.name, cached, src.calls.Load())
		}
		if prof.TagAffinity["graph"] != 0.4 || prof.DifficultyDistribution[recommend.DifficultyMedium] != 2.0/3 {
			t.Fatalf("%s: profile did not survive the cache: %+v", st.name, prof)
		}
	}
}

func TestProfileCacheDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	src := &fakeProfiles{err: errors.New("db down")}
	store := cache.NewMemoryStore(10)
	pc := NewProfileCache(logger.Nop(), src, store, time.Hour)

	if _, err := pc.ProfileSummary(ctx, uuid.New()); err == nil {
		t.Fatalf("expected source error")
	}
	if store.Len() != 0 {
		t.Fatalf("failed lookups must not be cached")
	}
}

func TestSummaryRoundsAndTrims(t *testing.T) {
	src := &fakeProfiles{prof: sampleProfile()}
	svc := NewService(NewProfileCache(logger.Nop(), src, cache.NewMemoryStore(10), 0), config.DataQualityConfig{SampleTarget: 24, SampleWeight: 1})
	user := uuid.New()

	sum, err := svc.Summary(context.Background(), user)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.OverallMastery != 61.2 || sum.AverageAccuracy != 55.6 {
		t.Fatalf("percentages: mastery=%v accuracy=%v", sum.OverallMastery, sum.AverageAccuracy)
	}
	if len(sum.WeakDomains) != 3 || sum.WeakDomains[0] != "graphs" || len(sum.StrongDomains) != 1 {
		t.Fatalf("domains: weak=%v strong=%v", sum.WeakDomains, sum.StrongDomains)
	}
	dp := sum.DifficultyPreference
	if dp.Easy != 33.3 || dp.Medium != 66.7 || dp.Hard != 0 || dp.Preferred != recommend.DifficultyMedium {
		t.Fatalf("difficulty preference: %+v", dp)
	}
	if sum.DataQuality != 50 {
		t.Fatalf("data quality: %v", sum.DataQuality)
	}
	if sum.ProblemsReviewed != 9 || sum.TotalReviews != 12 || sum.UserID != user {
		t.Fatalf("totals: %+v", sum)
	}
}

func TestDomainsAndTagAffinity(t *testing.T) {
	ctx := context.Background()
	src := &fakeProfiles{prof: sampleProfile()}
	svc := NewService(NewProfileCache(logger.Nop(), src, cache.NewMemoryStore(10), 0), config.DataQualityConfig{})
	user := uuid.New()

	d, err := svc.Domains(ctx, user)
	if err != nil || d.DomainCount != 2 || d.DomainSkills["arrays"] != 0.9 {
		t.Fatalf("domains: %+v err=%v", d, err)
	}
	ta, err := svc.TagAffinity(ctx, user)
	if err != nil || ta.TotalTags != 2 || ta.TopTags[0].Tag != "array" {
		t.Fatalf("tag affinity: %+v err=%v", ta, err)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("views should share the cached profile, calls=%d", src.calls.Load())
	}
}

func TestTopTags(t *testing.T) {
	affinity := map[string]float64{"b": 0.5, "a": 0.5, "c": 1}
	for i := 0; i < 12; i++ {
		affinity[string(rune('k'+i))] = 0.1
	}
	top := TopTags(affinity, 10)
	if len(top) != 10 {
		t.Fatalf("len=%d", len(top))
	}
	if top[0].Tag != "c" || top[1].Tag != "a" || top[2].Tag != "b" {
		t.Fatalf("order: %+v", top[:3])
	}
	if got := TopTags(nil, 10); got == nil || len(got) != 0 {
		t.Fatalf("empty affinity should give an empty list")
	}
}
