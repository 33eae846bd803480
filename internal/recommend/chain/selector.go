// Package chain selects a provider chain for a request and executes it node by node.
package chain

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

type Selection struct {
	Chain    config.ChainConfig
	PolicyID string
}

type Selector struct {
	log       *logger.Logger
	chains    map[string]config.ChainConfig
	first     config.ChainConfig
	policies  []config.PolicyConfig
	defaultID string
	now       func() time.Time
}

func NewSelector(log *logger.Logger, rc config.RecommendConfig) *Selector {
	s := &Selector{
		log:       log.With("component", "ChainSelector"),
		chains:    make(map[string]config.ChainConfig, len(rc.Chains)),
		defaultID: rc.DefaultChainID,
		now:       time.Now,
	}
	for i, c := range rc.Chains {
		if i == 0 {
			s.first = c
		}
		s.chains[c.ID] = c
	}
	s.policies = append([]config.PolicyConfig(nil), rc.Policies...)
	sort.SliceStable(s.policies, func(i, j int) bool { return s.policies[i].Priority < s.policies[j].Priority })
	return s
}

// Select is pure apart from the clock used for stickiness windows.
func (s *Selector) Select(rc recommend.RequestContext) Selection {
	for _, p := range s.policies {
		if !Matches(p.Match, rc) {
			continue
		}
		id := p.ChainID
		if len(p.Weighted) > 0 {
			id = s.pickWeighted(p, rc)
		}
		return Selection{Chain: s.resolve(id), PolicyID: p.ID}
	}
	return Selection{Chain: s.resolve(s.defaultID)}
}

func (s *Selector) resolve(id string) config.ChainConfig {
	if c, ok := s.chains[id]; ok {
		return c
	}
	s.log.Warn("unknown chain id; using first declared chain", "chain_id", id, "fallback", s.first.ID)
	return s.first
}

// pickWeighted hashes policy, sticky value and time window onto the cumulative weights.
func (s *Selector) pickWeighted(p config.PolicyConfig, rc recommend.RequestContext) string {
	total := 0
	for _, w := range p.Weighted {
		total += w.Weight
	}
	if total <= 0 {
		return p.Weighted[0].ChainID
	}

	sticky := rc.UserID.String()
	if strings.EqualFold(p.Stickiness.Key, "trace_id") {
		sticky = rc.TraceID
	}
	var window int64
	if ttl := p.Stickiness.TTL.Duration; ttl > 0 {
		secs := int64(ttl / time.Second)
		if secs < 1 {
			secs = 1
		}
		window = s.now().Unix() / secs
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(p.ID + "|" + sticky + "|" + strconv.FormatInt(window, 10)))
	bucket := int(h.Sum64() % uint64(total))
	for _, w := range p.Weighted {
		if bucket < w.Weight {
			return w.ChainID
		}
		bucket -= w.Weight
	}
	return p.Weighted[len(p.Weighted)-1].ChainID
}

// Matches reports whether rc satisfies m. Tiers compare case-insensitively; empty lists match anything.
func Matches(m config.MatchConfig, rc recommend.RequestContext) bool {
	if len(m.Tiers) > 0 {
		ok := false
		for _, t := range m.Tiers {
			if strings.EqualFold(t, rc.Tier) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return contains(m.ABGroups, rc.ABGroup) && contains(m.Routes, rc.Route)
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
