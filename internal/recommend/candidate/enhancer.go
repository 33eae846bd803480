package candidate

import (
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const maxPromptCandidates = 20

// KeepSize is the number of candidates forwarded to the provider for a given limit.
func KeepSize(limit int) int {
	return minInt(maxPromptCandidates, limit*2)
}

type Enhancer struct {
	tagDomains map[string]string
}

func NewEnhancer(tagDomains map[string]string) *Enhancer {
	m := make(map[string]string, len(tagDomains))
	for k, v := range tagDomains {
		m[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return &Enhancer{tagDomains: m}
}

// Domains maps problem tags (and the topic) onto known domains, sorted and unique.
func (e *Enhancer) Domains(topic string, tags []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(raw string) {
		if d, ok := e.tagDomains[strings.ToLower(strings.TrimSpace(raw))]; ok && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, t := range tags {
		add(t)
	}
	add(topic)
	sort.Strings(out)
	return out
}

// Enhance scores, filters and trims candidates for the prompt. The input slice is not modified.
func (e *Enhancer) Enhance(rc recommend.RequestContext, in []recommend.ProblemCandidate, profile recommend.ProfileSummary) []recommend.ProblemCandidate {
	if len(in) == 0 {
		return nil
	}
	cands := make([]recommend.ProblemCandidate, len(in))
	copy(cands, in)
	for i := range cands {
		cands[i].Domains = e.Domains(cands[i].Topic, cands[i].Tags)
	}

	filter := toSet(rc.Domains)
	if len(filter) > 0 {
		var kept []recommend.ProblemCandidate
		for _, c := range cands {
			if intersects(c.Domains, filter) {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			cands = kept
		}
	}

	weak := toSet(profile.WeakDomains)
	strong := toSet(profile.StrongDomains)
	target := rc.Difficulty.Band()
	if target < 0 {
		target = profile.TypicalDifficulty.Band()
	}

	for i := range cands {
		c := &cands[i]
		c.Similarity = 0.6*jaccard(c.Domains, weak) + 0.4*jaccard(c.Domains, strong)
		c.DifficultyFit = DifficultyFit(c.Difficulty, target)
		c.DomainAffinity = affinity(c.Domains, filter, weak, strong, profile.DomainMastery)
		score := 0.4*c.Urgency + 0.2*c.Similarity + 0.2*c.DifficultyFit + 0.2*c.DomainAffinity
		if intersects(c.Domains, weak) {
			if profile.Pattern == recommend.PatternStruggling {
				score *= 1.4
			} else {
				score *= 1.2
			}
		}
		c.PreScore = score
	}

	SortByScore(cands, rc.UserID.String(), func(c recommend.ProblemCandidate) float64 { return c.PreScore })
	return capPerDomain(cands, KeepSize(rc.Limit))
}

// DifficultyFit is 1 on target, minus 0.3 per band away; 0.5 when there is no target.
func DifficultyFit(d recommend.Difficulty, target int) float64 {
	band := d.Band()
	if target < 0 || band < 0 {
		return 0.5
	}
	return recommend.Clamp01(1 - 0.3*math.Abs(float64(band-target)))
}

// SortByScore orders candidates by score desc with a stable per-user hash tie-break.
func SortByScore(cands []recommend.ProblemCandidate, salt string, score func(recommend.ProblemCandidate) float64) {
	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := score(cands[i]), score(cands[j])
		if si != sj {
			return si > sj
		}
		return TieBreak(cands[i].ProblemID, salt) < TieBreak(cands[j].ProblemID, salt)
	})
}

func TieBreak(problemID int64, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(problemID, 10)))
	_, _ = h.Write([]byte(salt))
	return h.Sum64()
}

func capPerDomain(sorted []recommend.ProblemCandidate, keep int) []recommend.ProblemCandidate {
	if keep <= 0 {
		return nil
	}
	limit := (keep + 1) / 2
	counts := map[string]int{}
	out := make([]recommend.ProblemCandidate, 0, keep)
	var overflow []recommend.ProblemCandidate
	for _, c := range sorted {
		primary := ""
		if len(c.Domains) > 0 {
			primary = c.Domains[0]
		}
		if counts[primary] >= limit {
			overflow = append(overflow, c)
			continue
		}
		counts[primary]++
		out = append(out, c)
		if len(out) == keep {
			return out
		}
	}
	for _, c := range overflow {
		if len(out) == keep {
			break
		}
		out = append(out, c)
	}
	return out
}

func affinity(domains []string, filter, weak, strong map[string]bool, mastery map[string]float64) float64 {
	if len(domains) == 0 {
		return 0.3
	}
	best := 0.0
	for _, d := range domains {
		var v float64
		switch {
		case filter[d]:
			v = 1.0
		case weak[d]:
			v = 0.8
		case strong[d]:
			v = 0.2
		default:
			if _, seen := mastery[d]; !seen {
				v = 0.4
			} else {
				v = 0.3
			}
		}
		if v > best {
			best = v
		}
	}
	return best
}

func jaccard(domains []string, set map[string]bool) float64 {
	if len(domains) == 0 || len(set) == 0 {
		return 0
	}
	inter := 0
	union := len(set)
	for _, d := range domains {
		if set[d] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func intersects(domains []string, set map[string]bool) bool {
	for _, d := range domains {
		if set[d] {
			return true
		}
	}
	return false
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[strings.ToLower(x)] = true
	}
	return m
}
