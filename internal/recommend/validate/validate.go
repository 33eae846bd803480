// Package validate turns raw provider text into ranked items restricted to the candidate set.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

var ErrUnparseable = errors.New("provider response is not a valid items object")

type Result struct {
	Items []recommend.RankedItem
	// Dropped counts well-formed items rejected for unknown or duplicate ids.
	Dropped int
	// Received counts every entry in the provider's items array.
	Received int
}

// DroppedRatio is Dropped over Received, 0 when nothing was received.
func (r Result) DroppedRatio() float64 {
	if r.Received == 0 {
		return 0
	}
	return float64(r.Dropped) / float64(r.Received)
}

type rawItem struct {
	ProblemID  json.RawMessage `json:"problemId"`
	Reason     string          `json:"reason"`
	Confidence json.RawMessage `json:"confidence"`
	Strategy   string          `json:"strategy"`
	Score      json.RawMessage `json:"score"`
}

type envelope struct {
	Items *[]json.RawMessage `json:"items"`
}

// Parse extracts the items object, drops unknown and duplicate ids, clamps confidence and
// truncates to limit.
func Parse(raw string, candidates map[int64]bool, limit int) (Result, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{Received: len(*env.Items)}
	seen := map[int64]bool{}
	for _, msg := range *env.Items {
		var it rawItem
		if err := json.Unmarshal(msg, &it); err != nil {
			continue
		}
		id, ok := integral(it.ProblemID)
		if !ok {
			continue
		}
		if !candidates[id] || seen[id] {
			res.Dropped++
			continue
		}
		seen[id] = true

		conf, ok := number(it.Confidence)
		if !ok {
			conf = 0
		}
		conf = recommend.Clamp01(conf)
		score, ok := number(it.Score)
		if !ok || math.IsNaN(score) {
			score = conf
		}
		res.Items = append(res.Items, recommend.RankedItem{
			ProblemID:  id,
			Reason:     strings.TrimSpace(it.Reason),
			Confidence: conf,
			Strategy:   strings.ToLower(strings.TrimSpace(it.Strategy)),
			Score:      score,
		})
	}
	if limit > 0 && len(res.Items) > limit {
		res.Items = res.Items[:limit]
	}
	return res, nil
}

func decodeEnvelope(raw string) (envelope, error) {
	for _, candidate := range extractions(raw) {
		var env envelope
		if err := json.Unmarshal([]byte(candidate), &env); err == nil && env.Items != nil {
			return env, nil
		}
	}
	return envelope{}, ErrUnparseable
}

// extractions yields the direct text, a fenced ```json block, then the outermost braces.
func extractions(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	out := []string{s}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
			if j := strings.Index(rest, "```"); j >= 0 {
				out = append(out, strings.TrimSpace(rest[:j]))
			}
		}
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		out = append(out, s[i:j+1])
	}
	return out
}

func integral(raw json.RawMessage) (int64, bool) {
	f, ok := number(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f <= 0 {
		return 0, false
	}
	return int64(f), true
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// CandidateSet indexes candidate ids for Parse.
func CandidateSet(cands []recommend.ProblemCandidate) map[int64]bool {
	m := make(map[int64]bool, len(cands))
	for _, c := range cands {
		m[c.ProblemID] = true
	}
	return m
}

func (r Result) String() string {
	return fmt.Sprintf("items=%d dropped=%d received=%d", len(r.Items), r.Dropped, r.Received)
}
