package chain

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

func selectorConfig() config.RecommendConfig {
	return config.RecommendConfig{
		DefaultChainID: "std",
		Chains: []config.ChainConfig{
			{ID: "std"}, {ID: "gold"}, {ID: "exp-a"}, {ID: "exp-b"},
		},
		Policies: []config.PolicyConfig{
			{ID: "catch-all", Priority: 100, ChainID: "std"},
			{ID: "gold-tier", Priority: 10, Match: config.MatchConfig{Tiers: []string{"gold"}}, ChainID: "gold"},
			{ID: "experiment", Priority: 20, Match: config.MatchConfig{ABGroups: []string{"experimental"}}, Weighted: []config.WeightedChain{
				{ChainID: "exp-a", Weight: 1}, {ChainID: "exp-b", Weight: 1},
			}},
		},
	}
}

func TestSelectPolicyPrecedence(t *testing.T) {
	s := NewSelector(logger.Nop(), selectorConfig())
	got := s.Select(recommend.RequestContext{UserID: uuid.New(), Tier: "GOLD", ABGroup: "experimental", Route: recommend.DefaultRoute})
	if got.Chain.ID != "gold" || got.PolicyID != "gold-tier" {
		t.Fatalf("got chain=%s policy=%s", got.Chain.ID, got.PolicyID)
	}
	got = s.Select(recommend.RequestContext{UserID: uuid.New(), Tier: "BRONZE", ABGroup: "A"})
	if got.Chain.ID != "std" || got.PolicyID != "catch-all" {
		t.Fatalf("got chain=%s policy=%s", got.Chain.ID, got.PolicyID)
	}
}

func TestSelectWeightedIsSticky(t *testing.T) {
	s := NewSelector(logger.Nop(), selectorConfig())
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		rc := recommend.RequestContext{UserID: uuid.New(), Tier: "BRONZE", ABGroup: "experimental"}
		first := s.Select(rc)
		for j := 0; j < 5; j++ {
			if again := s.Select(rc); again.Chain.ID != first.Chain.ID {
				t.Fatalf("weighted pick not sticky: %s vs %s", first.Chain.ID, again.Chain.ID)
			}
		}
		seen[first.Chain.ID] = true
	}
	if !seen["exp-a"] || !seen["exp-b"] {
		t.Fatalf("both arms should receive traffic: %v", seen)
	}
}

func TestSelectStickinessWindow(t *testing.T) {
	cfg := selectorConfig()
	cfg.Policies[2].Stickiness = config.StickinessConfig{Key: "user_id", TTL: config.Duration{Duration: time.Hour}}
	s := NewSelector(logger.Nop(), cfg)
	now := time.Unix(3600*472222, 0)
	s.now = func() time.Time { return now }
	rc := recommend.RequestContext{UserID: uuid.New(), ABGroup: "experimental"}
	a := s.Select(rc)
	now = now.Add(10 * time.Minute)
	if b := s.Select(rc); b.Chain.ID != a.Chain.ID {
		t.Fatalf("same window must keep the same chain: %s vs %s", a.Chain.ID, b.Chain.ID)
	}
}

func TestSelectFallsBackOnUnknownChain(t *testing.T) {
	cfg := selectorConfig()
	cfg.Policies = nil
	cfg.DefaultChainID = "missing"
	got := NewSelector(logger.Nop(), cfg).Select(recommend.RequestContext{UserID: uuid.New()})
	if got.Chain.ID != "std" || got.PolicyID != "" {
		t.Fatalf("got chain=%s policy=%s", got.Chain.ID, got.PolicyID)
	}
}

func TestMatches(t *testing.T) {
	rc := recommend.RequestContext{Tier: "SILVER", ABGroup: "B", Route: "ai-recommendations"}
	if !Matches(config.MatchConfig{}, rc) {
		t.Fatalf("empty match should match")
	}
	if !Matches(config.MatchConfig{Tiers: []string{"silver"}, Routes: []string{"ai-recommendations"}}, rc) {
		t.Fatalf("tier match is case-insensitive")
	}
	if Matches(config.MatchConfig{ABGroups: []string{"b"}}, rc) {
		t.Fatalf("ab group match is case-sensitive")
	}
}
