package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

func testContext(user uuid.UUID) recommend.RequestContext {
	return recommend.RequestContext{
		UserID:         user,
		Limit:          10,
		Objective:      recommend.ObjectiveWeaknessFocus,
		Domains:        []string{"graphs", "arrays"},
		Difficulty:     recommend.DifficultyMedium,
		TimeboxMinutes: 45,
		Type:           recommend.TypeHybrid,
	}
}

func hybridResponse(ids ...int64) *recommend.Response {
	r := &recommend.Response{Meta: recommend.Meta{TraceID: "t-1", ChainID: "primary", ChainHops: []string{"oai"}}}
	for _, id := range ids {
		r.Items = append(r.Items, recommend.RecommendationItem{ProblemID: id, Source: recommend.SourceHybrid, Confidence: 0.7, Strategy: recommend.StrategyWeaknessFocus})
	}
	return r
}

func TestKeyDependsOnEveryDimension(t *testing.T) {
	user := uuid.New()
	base := testContext(user)
	k := Key(base, "v2", "primary")
	if !strings.HasPrefix(k, "rec-ai:"+user.String()+":") || len(k) != len("rec-ai:"+user.String()+":")+32 {
		t.Fatalf("unexpected key shape %q", k)
	}

	swapped := base
	swapped.Domains = []string{"arrays", "graphs"}
	if Key(swapped, "v2", "primary") != k {
		t.Fatalf("domain order must not change the key")
	}

	variants := []func(rc *recommend.RequestContext) (string, string){
		func(rc *recommend.RequestContext) (string, string) { rc.Limit = 5; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.Objective = recommend.ObjectiveExamPrep; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.Difficulty = recommend.DifficultyHard; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.Domains = []string{"graphs"}; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.TimeboxMinutes = 30; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.Type = recommend.TypeAI; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.UserID = uuid.New(); return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.Tier = "GOLD"; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { rc.ABGroup = "B"; return "v2", "primary" },
		func(rc *recommend.RequestContext) (string, string) { return "v1", "primary" },
		func(rc *recommend.RequestContext) (string, string) { return "v2", "budget" },
	}
	for i, v := range variants {
		rc := testContext(user)
		pv, chain := v(&rc)
		if Key(rc, pv, chain) == k {
			t.Fatalf("variant %d produced the same key", i)
		}
	}
}

func TestMemoryStoreTTLAndLRU(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "a", []byte("1"), time.Minute, nil)
	_ = s.Set(ctx, "b", []byte("2"), time.Minute, nil)
	if _, ok, _ := s.Get(ctx, "a"); !ok {
		t.Fatalf("expected a")
	}
	_ = s.Set(ctx, "c", []byte("3"), time.Minute, nil)
	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Fatalf("b should be evicted as least recently used")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("a should have expired")
	}
	if s.Len() != 1 {
		t.Fatalf("expired entry should be removed on read, len=%d", s.Len())
	}
}

func TestMemoryStoreInvalidateTag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	_ = s.Set(ctx, "k1", []byte("1"), time.Minute, []string{"u1", "p7"})
	_ = s.Set(ctx, "k2", []byte("2"), time.Minute, []string{"u1"})
	_ = s.Set(ctx, "k3", []byte("3"), time.Minute, []string{"u2", "p7"})

	n, err := s.InvalidateTag(ctx, "p7")
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, ok, _ := s.Get(ctx, "k2"); !ok {
		t.Fatalf("k2 is not tagged with p7")
	}
	n, _ = s.InvalidateTag(ctx, "u1")
	if n != 1 {
		t.Fatalf("only k2 should remain under u1, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestCacheRoundTripAndInvalidation(t *testing.T) {
	ctx := context.Background()
	c := New(logger.Nop(), NewMemoryStore(0), config.CacheConfig{}, nil)
	user := uuid.New()
	key := Key(testContext(user), "v2", "primary")

	if _, ok := c.Get(ctx, key); ok {
		t.Fatalf("empty cache should miss")
	}
	c.Put(ctx, key, hybridResponse(1, 2), user)
	got, ok := c.Get(ctx, key)
	if !ok || len(got.Items) != 2 || got.Items[0].ProblemID != 1 {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}

	if n, _ := c.InvalidateProblems(ctx, []int64{99}, TriggerProblemsModified); n != 0 {
		t.Fatalf("unrelated problem should not invalidate")
	}
	if n, _ := c.InvalidateProblems(ctx, []int64{2}, TriggerProblemsModified); n != 1 {
		t.Fatalf("problem 2 should invalidate the entry")
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Fatalf("entry should be gone")
	}

	c.Put(ctx, key, hybridResponse(3), user)
	other := uuid.New()
	otherKey := Key(testContext(other), "v2", "primary")
	c.Put(ctx, otherKey, hybridResponse(3), other)
	if n, _ := c.InvalidateUser(ctx, user, TriggerFeedback); n != 1 {
		t.Fatalf("user invalidation should remove exactly one key")
	}
	if _, ok := c.Get(ctx, otherKey); !ok {
		t.Fatalf("other users keep their entries")
	}
}

func TestShouldCache(t *testing.T) {
	c := New(logger.Nop(), NewMemoryStore(0), config.CacheConfig{}, nil)

	internal := hybridResponse(1)
	internal.Items[0].Source = recommend.SourceInternal
	busy := &recommend.Response{Meta: recommend.Meta{Busy: true}}
	external := hybridResponse(1)
	external.Items[0].Source = recommend.SourceExternal

	cases := []struct {
		name    string
		resp    *recommend.Response
		dropped float64
		want    bool
	}{
		{"hybrid", hybridResponse(1), 0, true},
		{"external", external, 0.5, true},
		{"too many dropped", hybridResponse(1), 0.6, false},
		{"internal", internal, 0, false},
		{"busy", busy, 0, false},
		{"empty", &recommend.Response{}, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range cases {
		if got := c.ShouldCache(tc.resp, tc.dropped); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestCollapseSharesOneComputation(t *testing.T) {
	c := New(logger.Nop(), NewMemoryStore(0), config.CacheConfig{CollapseMisses: true}, nil)

	var calls int32
	release := make(chan struct{})
	fn := func() (*recommend.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return hybridResponse(1), nil
	}

	var wg sync.WaitGroup
	results := make([]*recommend.Response, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Collapse("k", fn)
			if err != nil {
				t.Errorf("collapse: %v", err)
			}
			results[i] = r
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
	results[0].Items[0].ProblemID = 42
	for _, r := range results[1:] {
		if r.Items[0].ProblemID != 1 {
			t.Fatalf("shared responses must not alias each other")
		}
	}
}

func TestCollapseDisabledPassesThrough(t *testing.T) {
	c := New(logger.Nop(), NewMemoryStore(0), config.CacheConfig{}, nil)
	boom := errors.New("boom")
	if _, err := c.Collapse("k", func() (*recommend.Response, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStoreIncrBy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i, want := range []int64{1, 2, 1} {
		delta := int64(1)
		if i == 2 {
			delta = -1
		}
		got, err := s.IncrBy(ctx, "quota", delta, time.Hour)
		if err != nil || got != want {
			t.Fatalf("step %d: got %d err=%v, want %d", i, got, err, want)
		}
	}
	if raw, ok, _ := s.Get(ctx, "quota"); !ok || string(raw) != "1" {
		t.Fatalf("counter should read back as text, got %q ok=%v", raw, ok)
	}

	now = now.Add(2 * time.Hour)
	if got, _ := s.IncrBy(ctx, "quota", 1, time.Hour); got != 1 {
		t.Fatalf("expired counter should restart, got %d", got)
	}

	_ = s.Set(ctx, "blob", []byte("{}"), time.Hour, nil)
	if _, err := s.IncrBy(ctx, "blob", 1, time.Hour); err == nil {
		t.Fatalf("expected error for a non-integer value")
	}
}
