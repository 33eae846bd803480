// Package reqctx normalizes inbound query parameters and the caller identity into a
// recommend.RequestContext.
package reqctx

import (
	"hash/fnv"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

const (
	minTimebox = 5
	maxTimebox = 240
	maxDomains = 10
)

var abGroups = []string{"A", "B", "experimental", "debug", "control"}

// Params are the raw, unvalidated request inputs.
type Params struct {
	Limit        string
	Objective    string
	Domains      []string
	Difficulty   string
	Timebox      string
	Type         string
	ABGroup      string
	ForceRefresh string
	TraceID      string
}

type Identity struct {
	UserID uuid.UUID
	Tier   string
}

type Builder struct {
	log          *logger.Logger
	validDomains map[string]bool
	devMode      bool
}

// NewBuilder takes the tag→domain mapping; its values are the domains callers may filter by.
func NewBuilder(log *logger.Logger, tagDomains map[string]string, devMode bool) *Builder {
	valid := make(map[string]bool, len(tagDomains))
	for _, d := range tagDomains {
		valid[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Builder{log: log.With("component", "RequestContextBuilder"), validDomains: valid, devMode: devMode}
}

func (b *Builder) Build(p Params, id Identity) (recommend.RequestContext, error) {
	if id.UserID == uuid.Nil {
		return recommend.RequestContext{}, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}

	limit, err := parseLimit(p.Limit)
	if err != nil {
		return recommend.RequestContext{}, err
	}

	ctx := recommend.RequestContext{
		UserID:  id.UserID,
		Tier:    normalizeTier(id.Tier),
		Route:   recommend.DefaultRoute,
		Limit:   limit,
		Type:    recommend.TypeHybrid,
		TraceID: strings.TrimSpace(p.TraceID),
	}
	if ctx.TraceID == "" {
		ctx.TraceID = uuid.NewString()
	}
	if o, ok := recommend.ParseObjective(p.Objective); ok {
		ctx.Objective = o
	}
	if d, ok := recommend.ParseDifficulty(p.Difficulty); ok {
		ctx.Difficulty = d
	}
	if t, ok := recommend.ParseType(p.Type); ok {
		ctx.Type = t
	}
	ctx.TimeboxMinutes = parseTimebox(p.Timebox)
	ctx.Domains = b.sanitizeDomains(p.Domains)

	ctx.ABGroup = canonicalABGroup(p.ABGroup)
	if ctx.ABGroup == "" {
		if strings.TrimSpace(p.ABGroup) != "" {
			b.log.Warn("invalid ab_group ignored", "user_id", id.UserID, "ab_group", p.ABGroup)
		}
		ctx.ABGroup = HashABGroup(id.UserID)
	}

	if parseBool(p.ForceRefresh) {
		if b.devMode || ctx.ABGroup == "experimental" || ctx.ABGroup == "debug" {
			ctx.ForceRefresh = true
		} else {
			b.log.Warn("force refresh denied for non-privileged user", "user_id", id.UserID, "ab_group", ctx.ABGroup)
		}
	}
	return ctx, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return recommend.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.BadRequest("invalid_limit", "limit must be an integer")
	}
	if n < recommend.MinLimit || n > recommend.MaxLimit {
		return 0, apierr.BadRequest("invalid_limit", "limit must be between %d and %d", recommend.MinLimit, recommend.MaxLimit)
	}
	return n, nil
}

func parseTimebox(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return 0
	}
	if n < minTimebox {
		return minTimebox
	}
	if n > maxTimebox {
		return maxTimebox
	}
	return n
}

func (b *Builder) sanitizeDomains(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		// domains may arrive repeated or comma separated
		for _, part := range strings.Split(raw, ",") {
			d := strings.ToLower(strings.TrimSpace(part))
			if d == "" || seen[d] || !b.validDomains[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			if len(out) == maxDomains {
				break
			}
		}
		if len(out) == maxDomains {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func normalizeTier(tier string) string {
	t := strings.ToUpper(strings.TrimSpace(tier))
	if t == "" {
		return recommend.DefaultTier
	}
	return t
}

func canonicalABGroup(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, g := range abGroups {
		if strings.EqualFold(g, raw) {
			return g
		}
	}
	return ""
}

// HashABGroup assigns a stable A/B bucket from the user id.
func HashABGroup(userID uuid.UUID) string {
	h := fnv.New32a()
	_, _ = h.Write(userID[:])
	if h.Sum32()%2 == 0 {
		return "A"
	}
	return "B"
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
