package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-recommender/internal/http/response"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/reqctx"
)

const (
	HeaderTraceID            = "X-Trace-Id"
	HeaderCacheHit           = "X-Cache-Hit"
	HeaderRecSource          = "X-Rec-Source"
	HeaderProviderChain      = "X-Provider-Chain"
	HeaderFallbackReason     = "X-Fallback-Reason"
	HeaderChainID            = "X-Chain-Id"
	HeaderChainVersion       = "X-Chain-Version"
	HeaderPolicyID           = "X-Policy-Id"
	HeaderPromptVersion      = "X-Prompt-Version"
	HeaderRecommendationType = "X-Recommendation-Type"
	HeaderStrategyUsed       = "X-Strategy-Used"
	HeaderUserProfile        = "X-User-Profile"
)

type Recommender interface {
	Recommend(ctx context.Context, rc recommend.RequestContext) (*recommend.Response, error)
}

type RecommendationHandlerDeps struct {
	Log         *logger.Logger
	Builder     *reqctx.Builder
	Recommender Recommender
}

type RecommendationHandler struct {
	log     *logger.Logger
	builder *reqctx.Builder
	rec     Recommender
}

func NewRecommendationHandlerWithDeps(d RecommendationHandlerDeps) *RecommendationHandler {
	return &RecommendationHandler{
		log:     d.Log.With("handler", "RecommendationHandler"),
		builder: d.Builder,
		rec:     d.Recommender,
	}
}

// GetAIRecommendations answers GET /api/problems/ai-recommendations. Degraded
// outcomes still return 200; only malformed input and a dead scheduler are errors.
func (h *RecommendationHandler) GetAIRecommendations(c *gin.Context) {
	ctx := c.Request.Context()
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	rc, err := h.builder.Build(requestParams(c), reqctx.Identity{UserID: rd.UserID, Tier: rd.Tier})
	if err != nil {
		response.RespondAPIError(c, err, "invalid_request")
		return
	}

	resp, err := h.rec.Recommend(ctx, rc)
	if err != nil {
		h.log.Error("recommendation failed", "user_id", rd.UserID.String(), "trace_id", rc.TraceID, "error", err)
		response.RespondAPIError(c, err, "recommendation_failed")
		return
	}
	if resp.Meta.RecommendationType == "" {
		resp.Meta.RecommendationType = string(rc.Type)
	}
	if resp.Meta.TraceID == "" {
		resp.Meta.TraceID = rc.TraceID
	}
	if resp.Items == nil {
		resp.Items = []recommend.RecommendationItem{}
	}
	writeRecommendationHeaders(c, resp)
	response.RespondOK(c, resp)
}

func requestParams(c *gin.Context) reqctx.Params {
	return reqctx.Params{
		Limit:        c.Query("limit"),
		Objective:    c.Query("objective"),
		Domains:      queryList(c, "domains"),
		Difficulty:   c.Query("difficulty"),
		Timebox:      c.Query("timebox"),
		Type:         c.Query("recommendation_type"),
		ABGroup:      c.Query("ab_group"),
		ForceRefresh: firstNonEmpty(c.Query("force_refresh"), c.Query("forceRefresh")),
		TraceID:      ctxutil.TraceID(c.Request.Context()),
	}
}

func writeRecommendationHeaders(c *gin.Context, resp *recommend.Response) {
	m := resp.Meta
	h := c.Writer.Header()
	h.Set(HeaderTraceID, m.TraceID)
	h.Set(HeaderCacheHit, strconv.FormatBool(m.Cached))
	h.Set(HeaderRecSource, recSource(resp))
	if len(m.ChainHops) > 0 {
		h.Set(HeaderProviderChain, strings.Join(m.ChainHops, ">"))
	}
	setIf(h, HeaderFallbackReason, m.FallbackReason)
	setIf(h, HeaderChainID, m.ChainID)
	setIf(h, HeaderChainVersion, m.ChainVersion)
	setIf(h, HeaderPolicyID, m.PolicyID)
	setIf(h, HeaderPromptVersion, m.PromptVersion)
	setIf(h, HeaderUserProfile, m.UserProfileSummary)
	setIf(h, HeaderStrategyUsed, m.Strategy)
	h.Set(HeaderRecommendationType, m.RecommendationType)
}

// recSource picks the badge the client shows next to the list.
func recSource(resp *recommend.Response) string {
	m := resp.Meta
	switch {
	case m.Busy:
		return string(recommend.SourceDefault)
	case m.Strategy == "fsrs":
		return "FSRS"
	case m.FinalProvider != "" && !m.Cached:
		return strings.ToUpper(m.FinalProvider)
	default:
		return string(resp.Source())
	}
}

func setIf(h http.Header, key, val string) {
	if val != "" {
		h.Set(key, val)
	}
}

// queryList accepts domains=a&domains=b, domains[]=a and domains=a,b.
func queryList(c *gin.Context, key string) []string {
	raw := append(c.QueryArray(key), c.QueryArray(key+"[]")...)
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
