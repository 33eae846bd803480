package rank

import (
	"math"
	"sort"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/candidate"
)

const defaultMixKey = "default"

// DefaultMixes are the per-objective strategy shares; config entries override them by key.
func DefaultMixes() map[string]map[string]float64 {
	return map[string]map[string]float64{
		string(recommend.ObjectiveWeaknessFocus): {
			recommend.StrategyWeaknessFocus: 0.6, recommend.StrategyProgressiveDifficulty: 0.2, recommend.StrategyTopicCoverage: 0.2,
		},
		string(recommend.ObjectiveProgressiveDifficulty): {
			recommend.StrategyWeaknessFocus: 0.3, recommend.StrategyProgressiveDifficulty: 0.5, recommend.StrategyTopicCoverage: 0.2,
		},
		string(recommend.ObjectiveTopicCoverage): {
			recommend.StrategyWeaknessFocus: 0.2, recommend.StrategyProgressiveDifficulty: 0.3, recommend.StrategyTopicCoverage: 0.5,
		},
		string(recommend.ObjectiveExamPrep): {
			recommend.StrategyProgressiveDifficulty: 0.6, recommend.StrategyWeaknessFocus: 0.25, recommend.StrategyReviewReinforcement: 0.15,
		},
		string(recommend.ObjectiveRefreshMastered): {
			recommend.StrategyReviewReinforcement: 0.6, recommend.StrategyTopicCoverage: 0.25, recommend.StrategyProgressiveDifficulty: 0.15,
		},
		defaultMixKey: {
			recommend.StrategyWeaknessFocus: 0.4, recommend.StrategyProgressiveDifficulty: 0.4, recommend.StrategyTopicCoverage: 0.2,
		},
	}
}

type Mixer struct {
	mixes map[string]map[string]float64
}

func NewMixer(overrides map[string]map[string]float64) *Mixer {
	mixes := DefaultMixes()
	for k, v := range overrides {
		mixes[k] = v
	}
	return &Mixer{mixes: mixes}
}

// Mix fills per-strategy quotas from score-ordered items, backfills unused slots with the
// next-best leftovers and returns at most limit items ordered by score.
func (m *Mixer) Mix(items []recommend.RecommendationItem, objective recommend.Objective, limit int, salt string) []recommend.RecommendationItem {
	if limit <= 0 || len(items) == 0 {
		return nil
	}
	sorted := append([]recommend.RecommendationItem(nil), items...)
	sortItems(sorted, salt)

	shares, ok := m.mixes[string(objective)]
	if !ok {
		shares = m.mixes[defaultMixKey]
	}
	quota := quotas(shares, limit)

	out := make([]recommend.RecommendationItem, 0, limit)
	used := make([]bool, len(sorted))
	for i, it := range sorted {
		if len(out) == limit {
			break
		}
		if quota[it.Strategy] > 0 {
			quota[it.Strategy]--
			used[i] = true
			out = append(out, it)
		}
	}
	for i, it := range sorted {
		if len(out) == limit {
			break
		}
		if !used[i] {
			out = append(out, it)
		}
	}
	sortItems(out, salt)
	return out
}

// quotas rounds shares to slot counts using largest remainders so they sum to limit.
func quotas(shares map[string]float64, limit int) map[string]int {
	var total float64
	keys := make([]string, 0, len(shares))
	for k, v := range shares {
		total += v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]int, len(shares))
	if total <= 0 {
		return out
	}

	type rem struct {
		key  string
		frac float64
	}
	var rems []rem
	assigned := 0
	for _, k := range keys {
		exact := shares[k] / total * float64(limit)
		whole := int(math.Floor(exact))
		out[k] = whole
		assigned += whole
		rems = append(rems, rem{k, exact - float64(whole)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < limit && i < len(rems); i++ {
		out[rems[i].key]++
		assigned++
	}
	return out
}

func sortItems(items []recommend.RecommendationItem, salt string) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return candidate.TieBreak(items[i].ProblemID, salt) < candidate.TieBreak(items[j].ProblemID, salt)
	})
}
