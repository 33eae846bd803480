package rank

import (
	"math"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const defaultReason = "Recommended for your current practice plan"

// Provenance describes where the ranked items came from.
type Provenance struct {
	NodeIndex int
	Terminal  bool
}

type Ranker struct {
	cfg        config.RankingConfig
	calibrator *Calibrator
	mixer      *Mixer
	now        func() time.Time
}

func NewRanker(cfg config.RankingConfig) *Ranker {
	return &Ranker{
		cfg:        cfg,
		calibrator: NewCalibrator(cfg.Calibration),
		mixer:      NewMixer(cfg.Mixing),
		now:        time.Now,
	}
}

// DataQuality exposes the configured quality function.
func (r *Ranker) DataQuality(p recommend.ProfileSummary) float64 {
	return DataQuality(r.cfg.DataQuality, p, r.now())
}

// Personalization = 0.5·difficultyFit + 0.3·affinity + 0.2·accuracyMatch.
func Personalization(c recommend.ProblemCandidate, p recommend.ProfileSummary) float64 {
	target := math.Max(0.3, math.Min(0.8, p.OverallMastery-0.1))
	accMatch := recommend.Clamp01(1 - 2*math.Abs(c.RecentAccuracy-target))
	return recommend.Clamp01(0.5*c.DifficultyFit + 0.3*c.DomainAffinity + 0.2*accMatch)
}

// FinalScore is the weighted blend of provider confidence and internal signals.
func (r *Ranker) FinalScore(ext float64, c recommend.ProblemCandidate, personalization float64) float64 {
	w := r.cfg.Weights
	return w.External*recommend.Clamp01(ext) + w.Urgency*c.Urgency + w.Similarity*c.Similarity + w.Personalization*personalization
}

// Rank turns validated provider items into response items. Items whose id is missing from
// cands are skipped. For the ai type the provider order and score are kept.
func (r *Ranker) Rank(rc recommend.RequestContext, items []recommend.RankedItem, cands map[int64]recommend.ProblemCandidate, profile recommend.ProfileSummary, prov Provenance) []recommend.RecommendationItem {
	dq := profile.DataQuality
	penalty := r.calibrator.Penalty(prov.NodeIndex, prov.Terminal)
	weak := setOf(profile.WeakDomains)

	out := make([]recommend.RecommendationItem, 0, len(items))
	for _, it := range items {
		c, ok := cands[it.ProblemID]
		if !ok {
			continue
		}
		pers := Personalization(c, profile)
		conf := r.calibrator.Calibrate(it.Confidence, pers, c.Urgency, c.Similarity, dq, penalty)

		strategy := it.Strategy
		if !recommend.IsKnownStrategy(strategy) {
			strategy = InferStrategy(c, profile)
		}

		item := recommend.RecommendationItem{
			ProblemID:       it.ProblemID,
			Title:           c.Title,
			Reason:          decorateReason(it.Reason, c, weak),
			Confidence:      conf,
			ConfidenceLevel: recommend.ConfidenceLevel(conf),
			Strategy:        strategy,
		}
		if rc.Type == recommend.TypeAI {
			item.Source = recommend.SourceExternal
			item.Score = it.Score
		} else {
			item.Source = recommend.SourceHybrid
			item.Score = r.FinalScore(it.Confidence, c, pers)
		}
		out = append(out, item)
	}

	if rc.Type == recommend.TypeAI {
		if len(out) > rc.Limit {
			out = out[:rc.Limit]
		}
		return out
	}
	return r.mixer.Mix(out, rc.Objective, rc.Limit, rc.UserID.String())
}

func decorateReason(reason string, c recommend.ProblemCandidate, weak map[string]bool) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}
	var tags []string
	if c.Urgency >= highUrgency {
		tags = append(tags, "[High FSRS urgency]")
	}
	for _, d := range c.Domains {
		if weak[d] {
			tags = append(tags, "[Matches weak domain]")
			break
		}
	}
	if c.DifficultyFit >= 0.99 {
		tags = append(tags, "[Difficulty fit]")
	}
	if len(tags) == 0 {
		return reason
	}
	return reason + " " + strings.Join(tags, " ")
}
