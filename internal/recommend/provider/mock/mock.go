// Package mock is a deterministic in-process provider used for local runs and tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
)

// Failure modes selectable through mock_failure.
const (
	FailNone         = ""
	FailTimeout      = "timeout"
	FailUpstream     = "upstream"
	FailRateLimited  = "rate_limited"
	FailUnauthorized = "unauthorized"
	FailConfig       = "config"
	FailParse        = "parse"
	FailUnknownIDs   = "unknown_ids"
)

type Provider struct {
	id      string
	latency time.Duration
	failure string
}

func New(cfg config.ProviderConfig) *Provider {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = "mock"
	}
	return &Provider{
		id:      id,
		latency: cfg.MockLatency.Duration,
		failure: strings.ToLower(strings.TrimSpace(cfg.MockFailure)),
	}
}

func (p *Provider) Name() string { return p.id }

func (p *Provider) Rank(ctx context.Context, req provider.Request) (string, error) {
	if p.failure == FailTimeout {
		<-ctx.Done()
		return "", provider.NewError(recommend.ErrTimeout, p.id, ctx.Err())
	}
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", provider.NewError(recommend.ErrTimeout, p.id, ctx.Err())
		case <-t.C:
		}
	}

	switch p.failure {
	case FailUpstream:
		return "", provider.NewError(recommend.ErrUpstream, p.id, errors.New("mock upstream failure"))
	case FailRateLimited:
		return "", provider.NewError(recommend.ErrRateLimited, p.id, errors.New("mock rate limited"))
	case FailUnauthorized:
		return "", provider.NewError(recommend.ErrUnauthorized, p.id, errors.New("mock unauthorized"))
	case FailConfig:
		return "", provider.NewError(recommend.ErrConfig, p.id, errors.New("mock misconfigured"))
	case FailParse:
		return "I think you should try problem 42 next.", nil
	}

	ids := append([]int64(nil), req.CandidateIDs...)
	if p.failure == FailUnknownIDs {
		ids = append(ids, 9_000_000_001, 9_000_000_002)
	}
	b, err := json.Marshal(map[string]any{"items": p.rankIDs(ids, req.UserID, req.Limit)})
	if err != nil {
		return "", provider.NewError(recommend.ErrUpstream, p.id, err)
	}
	return string(b), nil
}

var strategies = []string{
	recommend.StrategyWeaknessFocus,
	recommend.StrategyProgressiveDifficulty,
	recommend.StrategyTopicCoverage,
	recommend.StrategyReviewReinforcement,
}

// rankIDs orders ids by a hash of (provider, user, id) so output is stable per user.
func (p *Provider) rankIDs(ids []int64, userID string, limit int) []recommend.RankedItem {
	type scored struct {
		id int64
		h  uint64
	}
	rows := make([]scored, 0, len(ids))
	for _, id := range ids {
		sum := sha256.Sum256([]byte(p.id + "\n" + userID + "\n" + strconv.FormatInt(id, 10)))
		rows = append(rows, scored{id: id, h: binary.LittleEndian.Uint64(sum[:8])})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].h > rows[j].h })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]recommend.RankedItem, 0, len(rows))
	for i, r := range rows {
		conf := 0.5 + float64(r.h%500)/1000
		out = append(out, recommend.RankedItem{
			ProblemID:  r.id,
			Reason:     "Selected by mock ranking",
			Confidence: conf,
			Strategy:   strategies[int(r.h%uint64(len(strategies)))],
			Score:      1 - float64(i)/float64(len(rows)+1),
		})
	}
	return out
}
