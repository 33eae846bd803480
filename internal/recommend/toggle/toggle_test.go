package toggle

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

func rcFor(uid uuid.UUID, tier, ab string) recommend.RequestContext {
	return recommend.RequestContext{UserID: uid, Tier: tier, ABGroup: ab, Route: recommend.DefaultRoute}
}

func TestEvaluateOrder(t *testing.T) {
	denied := uuid.New()
	allowed := uuid.New()
	other := uuid.New()

	base := config.ToggleConfig{
		Enabled:       true,
		AllowUsers:    []string{allowed.String()},
		DenyUsers:     []string{denied.String()},
		AllowListMode: "override",
		ByTier:        map[string]bool{"bronze": false},
		ByABGroup:     map[string]bool{"control": false},
	}

	cases := []struct {
		name    string
		mutate  func(c *config.ToggleConfig)
		rc      recommend.RequestContext
		enabled bool
		reason  string
	}{
		{"global off", func(c *config.ToggleConfig) { c.Enabled = false }, rcFor(allowed, "GOLD", "A"), false, ReasonGlobalDisabled},
		{"deny wins over allow", func(c *config.ToggleConfig) { c.AllowUsers = append(c.AllowUsers, denied.String()) }, rcFor(denied, "GOLD", "A"), false, ReasonUserDenied},
		{"allow overrides tier", nil, rcFor(allowed, "BRONZE", "A"), true, ReasonUserAllowed},
		{"tier disabled", nil, rcFor(other, "BRONZE", "A"), false, "TIER_DISABLED:BRONZE"},
		{"ab group disabled", nil, rcFor(other, "GOLD", "control"), false, "ABGROUP_DISABLED:control"},
		{"route disabled", func(c *config.ToggleConfig) { c.ByRoute = map[string]bool{recommend.DefaultRoute: false} }, rcFor(other, "GOLD", "A"), false, "ROUTE_DISABLED:" + recommend.DefaultRoute},
		{"whitelist denies others", func(c *config.ToggleConfig) { c.AllowListMode = "whitelist" }, rcFor(other, "GOLD", "A"), false, ReasonAllowListDenied},
		{"enabled", nil, rcFor(other, "GOLD", "B"), true, ReasonEnabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.AllowUsers = append([]string(nil), base.AllowUsers...)
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			got := NewEvaluator(logger.Nop(), cfg).Evaluate(tc.rc)
			if got.Enabled != tc.enabled || got.Reason != tc.reason {
				t.Fatalf("got=%+v want enabled=%v reason=%q", got, tc.enabled, tc.reason)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator(logger.Nop(), config.ToggleConfig{Enabled: true, ByTier: map[string]bool{"SILVER": false}})
	rc := rcFor(uuid.New(), "silver", "A")
	first := e.Evaluate(rc)
	for i := 0; i < 50; i++ {
		if got := e.Evaluate(rc); got != first {
			t.Fatalf("decision changed: %+v vs %+v", got, first)
		}
	}
	if e.IsEnabled(rc) {
		t.Fatalf("silver should be disabled")
	}
}
