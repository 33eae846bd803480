package rank

import "github.com/yungbote/neurobridge-recommender/internal/recommend"

const highUrgency = 0.6

// InferStrategy labels a candidate when the provider gave no usable strategy.
func InferStrategy(c recommend.ProblemCandidate, p recommend.ProfileSummary) string {
	weak := setOf(p.WeakDomains)
	for _, d := range c.Domains {
		if weak[d] {
			return recommend.StrategyWeaknessFocus
		}
	}
	if typical := p.TypicalDifficulty.Band(); typical >= 0 && c.Difficulty.Band() == typical+1 {
		return recommend.StrategyProgressiveDifficulty
	}
	for _, d := range c.Domains {
		if _, seen := p.DomainMastery[d]; !seen {
			return recommend.StrategyTopicCoverage
		}
	}
	if c.Urgency >= highUrgency {
		return recommend.StrategyReviewReinforcement
	}
	return recommend.StrategyProgressiveDifficulty
}

func setOf(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
