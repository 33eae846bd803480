// Package toggle decides whether AI recommendations are enabled for a request.
package toggle

import (
	"strings"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	ReasonEnabled         = "ENABLED"
	ReasonGlobalDisabled  = "GLOBAL_DISABLED"
	ReasonUserDenied      = "USER_DENIED"
	ReasonUserAllowed     = "USER_ALLOWED"
	ReasonAllowListDenied = "ALLOWLIST_DENIED"
)

type Decision struct {
	Enabled bool
	Reason  string
}

type Evaluator struct {
	log   *logger.Logger
	cfg   config.ToggleConfig
	allow map[string]bool
	deny  map[string]bool
	tiers map[string]bool
}

func NewEvaluator(log *logger.Logger, cfg config.ToggleConfig) *Evaluator {
	e := &Evaluator{
		log:   log.With("component", "ToggleEvaluator"),
		cfg:   cfg,
		allow: toSet(cfg.AllowUsers),
		deny:  toSet(cfg.DenyUsers),
		tiers: map[string]bool{},
	}
	for k, v := range cfg.ByTier {
		e.tiers[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return e
}

// Evaluate is pure: the same context always yields the same decision.
func (e *Evaluator) Evaluate(rc recommend.RequestContext) Decision {
	if !e.cfg.Enabled {
		return Decision{Reason: ReasonGlobalDisabled}
	}
	uid := rc.UserID.String()
	if e.deny[uid] {
		return Decision{Reason: ReasonUserDenied}
	}
	if e.allow[uid] {
		return Decision{Enabled: true, Reason: ReasonUserAllowed}
	}
	if e.cfg.AllowListMode == "whitelist" && len(e.allow) > 0 {
		return Decision{Reason: ReasonAllowListDenied}
	}
	if on, ok := e.cfg.ByRoute[rc.Route]; ok && !on {
		return Decision{Reason: "ROUTE_DISABLED:" + rc.Route}
	}
	tier := strings.ToUpper(rc.Tier)
	if on, ok := e.tiers[tier]; ok && !on {
		return Decision{Reason: "TIER_DISABLED:" + tier}
	}
	if on, ok := e.cfg.ByABGroup[rc.ABGroup]; ok && !on {
		return Decision{Reason: "ABGROUP_DISABLED:" + rc.ABGroup}
	}
	return Decision{Enabled: true, Reason: ReasonEnabled}
}

func (e *Evaluator) IsEnabled(rc recommend.RequestContext) bool {
	d := e.Evaluate(rc)
	if !d.Enabled {
		e.log.Debug("ai recommendations disabled", "user_id", rc.UserID, "reason", d.Reason)
	}
	return d.Enabled
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			out[id] = true
		}
	}
	return out
}
