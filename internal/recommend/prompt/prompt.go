// Package prompt renders the versioned ranking prompt sent to external providers.
package prompt

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/neurobridge-recommender/internal/platform/promptstyle"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	V1 = "v1"
	V2 = "v2"
)

type Prompt struct {
	Version string
	System  string
	User    string
	Schema  map[string]any
}

type Assembler struct {
	version string
}

// NewAssembler pins the prompt version; unknown versions fall back to v2.
func NewAssembler(version string) *Assembler {
	v := strings.ToLower(strings.TrimSpace(version))
	if v != V1 && v != V2 {
		v = V2
	}
	return &Assembler{version: v}
}

func (a *Assembler) Version() string { return a.version }

// Schema is the JSON contract every provider response must satisfy.
func Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"problemId", "reason", "confidence", "strategy", "score"},
					"properties": map[string]any{
						"problemId":  map[string]any{"type": "integer"},
						"reason":     map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"strategy":   map[string]any{"type": "string", "enum": Strategies()},
						"score":      map[string]any{"type": "number"},
					},
				},
			},
		},
	}
}

func Strategies() []string {
	return []string{
		recommend.StrategyWeaknessFocus,
		recommend.StrategyProgressiveDifficulty,
		recommend.StrategyTopicCoverage,
		recommend.StrategyReviewReinforcement,
	}
}

type candidatePayload struct {
	ID             int64    `json:"id"`
	Topic          string   `json:"topic,omitempty"`
	Difficulty     string   `json:"difficulty"`
	Tags           []string `json:"tags,omitempty"`
	RecentAccuracy float64  `json:"recentAccuracy"`
	Attempts       int      `json:"attempts"`
	Urgency        float64  `json:"urgency"`
}

type profilePayload struct {
	WeakDomains            []string           `json:"weakDomains"`
	StrongDomains          []string           `json:"strongDomains"`
	OverallMastery         float64            `json:"overallMastery"`
	DifficultyDistribution map[string]float64 `json:"difficultyDistribution,omitempty"`
	LearningPattern        string             `json:"learningPattern,omitempty"`
}

type payload struct {
	Objective      string             `json:"objective,omitempty"`
	Domains        []string           `json:"domains,omitempty"`
	Difficulty     string             `json:"difficulty,omitempty"`
	TimeboxMinutes int                `json:"timeboxMinutes,omitempty"`
	Limit          int                `json:"limit"`
	Guidance       string             `json:"guidance,omitempty"`
	Profile        *profilePayload    `json:"profile,omitempty"`
	Candidates     []candidatePayload `json:"candidates"`
}

func (a *Assembler) Assemble(rc recommend.RequestContext, cands []recommend.ProblemCandidate, profile recommend.ProfileSummary) (Prompt, error) {
	if len(cands) == 0 {
		return Prompt{}, fmt.Errorf("assemble prompt: no candidates")
	}
	schema := Schema()
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal schema: %w", err)
	}

	p := payload{
		Objective:      string(rc.Objective),
		Domains:        rc.Domains,
		Difficulty:     string(rc.Difficulty),
		TimeboxMinutes: rc.TimeboxMinutes,
		Limit:          rc.Limit,
		Candidates:     make([]candidatePayload, 0, len(cands)),
	}
	for _, c := range cands {
		p.Candidates = append(p.Candidates, candidatePayload{
			ID:             c.ProblemID,
			Topic:          c.Topic,
			Difficulty:     string(c.Difficulty),
			Tags:           c.Tags,
			RecentAccuracy: round3(c.RecentAccuracy),
			Attempts:       c.Attempts,
			Urgency:        round3(c.Urgency),
		})
	}
	if a.version == V2 {
		p.Guidance = guidance(rc.Objective)
		p.Profile = summarize(profile)
	}
	userJSON, err := json.Marshal(p)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal prompt payload: %w", err)
	}

	system := strings.Join([]string{
		"Select and order up to `limit` problems from `candidates` for this learner.",
		"Respond with JSON matching this schema exactly:",
		string(schemaJSON),
		"Every problemId MUST be one of the candidate ids. Never return other ids.",
		"strategy MUST be one of: " + strings.Join(Strategies(), ", ") + ".",
		"confidence is your certainty in [0,1]; score is the ranking score.",
		"Keep each reason under 160 characters.",
	}, "\n")

	return Prompt{
		Version: a.version,
		System:  promptstyle.ApplySystem(system, "json"),
		User:    string(userJSON),
		Schema:  schema,
	}, nil
}

func guidance(o recommend.Objective) string {
	switch o {
	case recommend.ObjectiveWeaknessFocus:
		return "Prioritize problems in the learner's weak domains."
	case recommend.ObjectiveProgressiveDifficulty:
		return "Step difficulty up by at most one level from what the learner handles well."
	case recommend.ObjectiveTopicCoverage:
		return "Spread picks across domains, favouring ones the learner has not practiced."
	case recommend.ObjectiveExamPrep:
		return "Favour a realistic mix of medium and hard problems with high urgency."
	case recommend.ObjectiveRefreshMastered:
		return "Favour review of mastered domains whose retention is decaying."
	default:
		return "Balance weak-domain practice with gradual difficulty progression."
	}
}

func summarize(p recommend.ProfileSummary) *profilePayload {
	out := &profilePayload{
		WeakDomains:     nonNil(p.WeakDomains),
		StrongDomains:   nonNil(p.StrongDomains),
		OverallMastery:  round3(p.OverallMastery),
		LearningPattern: string(p.Pattern),
	}
	if len(p.DifficultyDistribution) > 0 {
		out.DifficultyDistribution = make(map[string]float64, len(p.DifficultyDistribution))
		for k, v := range p.DifficultyDistribution {
			out.DifficultyDistribution[string(k)] = round3(v)
		}
	}
	return out
}

// Summary is the short human-readable profile line used in headers and meta.
func Summary(p recommend.ProfileSummary) string {
	weak := append([]string(nil), p.WeakDomains...)
	sort.Strings(weak)
	if len(weak) > 3 {
		weak = weak[:3]
	}
	pattern := string(p.Pattern)
	if pattern == "" {
		pattern = "UNKNOWN"
	}
	s := fmt.Sprintf("%s mastery=%.2f", pattern, p.OverallMastery)
	if len(weak) > 0 {
		s += " weak=" + strings.Join(weak, ",")
	}
	return s
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
