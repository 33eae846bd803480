// Package rank blends provider output with scheduler signals, calibrates confidence and
// balances the final list across strategies.
package rank

import (
	"math"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

// DataQuality scores how much the learner profile can be trusted, in [0,1].
// Recency is 1 inside the window and decays linearly to 0 at four windows.
func DataQuality(cfg config.DataQualityConfig, p recommend.ProfileSummary, now time.Time) float64 {
	sample := 0.0
	if cfg.SampleTarget > 0 {
		sample = math.Min(float64(p.TotalReviews)/float64(cfg.SampleTarget), 1)
	}

	recency := 0.0
	window := cfg.RecencyWindow.Duration
	if !p.LastReviewAt.IsZero() && window > 0 {
		age := now.Sub(p.LastReviewAt)
		switch {
		case age <= window:
			recency = 1
		case age >= 4*window:
			recency = 0
		default:
			recency = 1 - float64(age-window)/float64(3*window)
		}
	}
	return recommend.Clamp01(cfg.SampleWeight*sample + cfg.RecencyWeight*recency)
}
