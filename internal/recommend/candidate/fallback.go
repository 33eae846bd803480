package candidate

import (
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

// FallbackItems ranks candidates without any provider: lowest accuracy first, then fewer
// attempts, then higher urgency.
func FallbackItems(cands []recommend.ProblemCandidate, limit int) []recommend.RecommendationItem {
	sorted := make([]recommend.ProblemCandidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RecentAccuracy != b.RecentAccuracy {
			return a.RecentAccuracy < b.RecentAccuracy
		}
		if a.Attempts != b.Attempts {
			return a.Attempts < b.Attempts
		}
		return a.Urgency > b.Urgency
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	items := make([]recommend.RecommendationItem, 0, len(sorted))
	for _, c := range sorted {
		conf := recommend.Clamp01(1 - c.RecentAccuracy)
		items = append(items, recommend.RecommendationItem{
			ProblemID:       c.ProblemID,
			Title:           c.Title,
			Reason:          fmt.Sprintf("FSRS fallback: prioritize lower accuracy (%d%%) and due status", int(math.Round(c.RecentAccuracy*100))),
			Confidence:      conf,
			ConfidenceLevel: recommend.ConfidenceLevel(conf),
			Strategy:        recommend.StrategyReviewReinforcement,
			Source:          recommend.SourceInternal,
			Score:           conf,
		})
	}
	return items
}
