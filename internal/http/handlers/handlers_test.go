package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/feedback"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/reqctx"
)

type fakeRecommender struct {
	got  recommend.RequestContext
	resp *recommend.Response
	err  error
}

func (f *fakeRecommender) Recommend(_ context.Context, rc recommend.RequestContext) (*recommend.Response, error) {
	f.got = rc
	return f.resp, f.err
}

type fakeSubmitter struct {
	got feedback.Input
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, userID uuid.UUID, in feedback.Input) (*recommend.Feedback, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.Feedback{ID: uuid.New(), UserID: userID, ProblemID: in.ProblemID, CreatedAt: time.Now()}, nil
}

type fakeInvalidator struct {
	users    []string
	problems [][]int64
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, _ uuid.UUID, trigger string) (int, error) {
	f.users = append(f.users, trigger)
	return 2, nil
}

func (f *fakeInvalidator) InvalidateProblems(_ context.Context, ids []int64, _ string) (int, error) {
	f.problems = append(f.problems, ids)
	return len(ids), nil
}

// withUser stands in for the auth middleware.
func withUser(uid uuid.UUID, tier string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: uid, Tier: tier})
		ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{TraceID: "trace-1"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newRouter(uid uuid.UUID, rec Recommender, fb FeedbackSubmitter, inv Invalidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(uid, "GOLD"))
	rh := NewRecommendationHandlerWithDeps(RecommendationHandlerDeps{
		Log:         logger.Nop(),
		Builder:     reqctx.NewBuilder(logger.Nop(), map[string]string{"graph": "graphs", "tree": "trees"}, false),
		Recommender: rec,
	})
	fh := NewFeedbackHandlerWithDeps(FeedbackHandlerDeps{Log: logger.Nop(), Feedback: fb})
	eh := NewEventHandlerWithDeps(EventHandlerDeps{Log: logger.Nop(), Cache: inv})
	r.GET("/api/problems/ai-recommendations", rh.GetAIRecommendations)
	r.POST("/api/problems/:id/recommendation-feedback", fh.Submit)
	r.POST("/api/recommendations/events", eh.Ingest)
	return r
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetAIRecommendationsSetsHeaders(t *testing.T) {
	uid := uuid.New()
	fake := &fakeRecommender{resp: &recommend.Response{
		Items: []recommend.RecommendationItem{{ProblemID: 3, Source: recommend.SourceHybrid, Confidence: 0.7}},
		Meta: recommend.Meta{
			TraceID:            "trace-1",
			ChainID:            "main",
			ChainVersion:       "v1",
			PolicyID:           "default",
			PromptVersion:      "v2",
			Strategy:           "hybrid",
			ChainHops:          []string{"primary", "secondary"},
			FinalProvider:      "openai",
			UserProfileSummary: "STEADY_PROGRESS",
		},
	}}
	r := newRouter(uid, fake, nil, nil)

	rec := do(r, http.MethodGet, "/api/problems/ai-recommendations?limit=5&objective=weakness_focus&domains[]=graphs&domains=trees,bogus&recommendation_type=ai", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	want := map[string]string{
		HeaderTraceID:            "trace-1",
		HeaderCacheHit:           "false",
		HeaderRecSource:          "OPENAI",
		HeaderProviderChain:      "primary>secondary",
		HeaderChainID:            "main",
		HeaderChainVersion:       "v1",
		HeaderPolicyID:           "default",
		HeaderPromptVersion:      "v2",
		HeaderRecommendationType: "ai",
		HeaderUserProfile:        "STEADY_PROGRESS",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Fatalf("%s: got=%q want=%q", k, got, v)
		}
	}
	if rec.Header().Get(HeaderFallbackReason) != "" {
		t.Fatalf("fallback reason should be absent")
	}
	if fake.got.Limit != 5 || fake.got.Tier != "GOLD" || fake.got.TraceID != "trace-1" || fake.got.UserID != uid {
		t.Fatalf("unexpected request context: %+v", fake.got)
	}
	if strings.Join(fake.got.Domains, ",") != "graphs,trees" {
		t.Fatalf("domains: %v", fake.got.Domains)
	}
	var body recommend.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ProblemID != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetAIRecommendationsBusyStillOK(t *testing.T) {
	fake := &fakeRecommender{resp: &recommend.Response{Meta: recommend.Meta{
		Busy: true, Message: "try later", TerminalStatus: 429, FallbackReason: "RATE_LIMITED", ChainHops: []string{"primary"},
	}}}
	rec := do(newRouter(uuid.New(), fake, nil, nil), http.MethodGet, "/api/problems/ai-recommendations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get(HeaderRecSource) != "DEFAULT" || rec.Header().Get(HeaderFallbackReason) != "RATE_LIMITED" {
		t.Fatalf("headers: %v", rec.Header())
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("items should serialize as empty array: %s", rec.Body.String())
	}
}

func TestGetAIRecommendationsErrors(t *testing.T) {
	rec := do(newRouter(uuid.New(), &fakeRecommender{}, nil, nil), http.MethodGet, "/api/problems/ai-recommendations?limit=99", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_limit") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	down := &fakeRecommender{err: apierr.New(http.StatusServiceUnavailable, "scheduler_unavailable", errors.New("db"))}
	rec = do(newRouter(uuid.New(), down, nil, nil), http.MethodGet, "/api/problems/ai-recommendations", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "scheduler_unavailable") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestFeedbackSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newRouter(uuid.New(), nil, sub, nil)

	rec := do(r, http.MethodPost, "/api/problems/42/recommendation-feedback", `{"recommendationId":"r1","problemId":7,"action":"accepted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if sub.got.ProblemID != 42 || sub.got.Action != "accepted" {
		t.Fatalf("path id should win: %+v", sub.got)
	}

	cases := []struct {
		name, target, body, code string
	}{
		{"bad id", "/api/problems/abc/recommendation-feedback", `{}`, "invalid_problem_id"},
		{"bad json", "/api/problems/1/recommendation-feedback", `{`, "invalid_json"},
	}
	for _, tc := range cases {
		rec := do(r, http.MethodPost, tc.target, tc.body)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%s: status=%d body=%s", tc.name, rec.Code, rec.Body.String())
		}
	}

	sub.err = apierr.BadRequest("invalid_feedback", "Action must be one of: accepted skipped solved hidden")
	rec = do(r, http.MethodPost, "/api/problems/1/recommendation-feedback", `{"recommendationId":"r1","action":"x"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_feedback") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestEventsInvalidate(t *testing.T) {
	inv := &fakeInvalidator{}
	r := newRouter(uuid.New(), nil, nil, inv)

	rec := do(r, http.MethodPost, "/api/recommendations/events",
		`{"events":[{"type":"review_completed"},{"type":"preferences_changed"},{"type":"problems_modified","problemIds":[1,2,3]}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(inv.users) != 1 || inv.users[0] != "review_completed" {
		t.Fatalf("user invalidation should run once: %v", inv.users)
	}
	if len(inv.problems) != 1 || len(inv.problems[0]) != 3 {
		t.Fatalf("problem invalidation: %v", inv.problems)
	}
	var out struct {
		Invalidated int `json:"invalidated"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Invalidated != 5 {
		t.Fatalf("invalidated=%d", out.Invalidated)
	}

	for _, body := range []string{`{"type":"exploded"}`, `{"type":"problems_modified"}`, ``, `nope`} {
		rec := do(r, http.MethodPost, "/api/recommendations/events", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d", body, rec.Code)
		}
	}
}
