package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/async"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/reqctx"
)

func newAsyncRouter(t *testing.T, uid uuid.UUID, rec Recommender, limit int) *gin.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc := async.NewService(logger.Nop(), cache.NewMemoryStore(100), rec, config.AsyncConfig{
		Enabled:    true,
		DailyLimit: limit,
		Workers:    1,
		TaskTTL:    config.Duration{Duration: time.Hour},
		ResultTTL:  config.Duration{Duration: time.Hour},
	})
	svc.Start(ctx)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(uid, "GOLD"))
	h := NewAsyncRecommendationHandlerWithDeps(AsyncRecommendationHandlerDeps{
		Log:     logger.Nop(),
		Builder: reqctx.NewBuilder(logger.Nop(), nil, true),
		Tasks:   svc,
	})
	r.POST("/api/problems/ai-recommendations/async", h.Submit)
	r.GET("/api/problems/ai-recommendations/async/:taskId", h.Status)
	r.GET("/api/problems/ai-recommendations/daily-limit", h.DailyLimit)
	return r
}

func TestAsyncSubmitAndPoll(t *testing.T) {
	fake := &fakeRecommender{resp: &recommend.Response{
		Items: []recommend.RecommendationItem{{ProblemID: 9, Source: recommend.SourceHybrid}},
		Meta:  recommend.Meta{TraceID: "trace-1", ChainHops: []string{"primary"}, FinalProvider: "openai"},
	}}
	r := newAsyncRouter(t, uuid.New(), fake, 1)

	rec := do(r, http.MethodPost, "/api/problems/ai-recommendations/async?limit=5&force_refresh=true", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var task async.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != async.StatusPending || rec.Header().Get(HeaderTaskID) != task.ID.String() {
		t.Fatalf("task=%+v headers=%v", task, rec.Header())
	}
	loc := rec.Header().Get("Location")
	if loc != "/api/problems/ai-recommendations/async/"+task.ID.String() {
		t.Fatalf("location=%q", loc)
	}

	var view async.View
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = do(r, http.MethodGet, loc, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status=%d body=%s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode view: %v", err)
		}
		if view.Status == async.StatusCompleted || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if view.Status != async.StatusCompleted || view.Progress != 100 || view.Result == nil || view.Result.Items[0].ProblemID != 9 {
		t.Fatalf("completed view: %+v", view)
	}
	if rec.Header().Get(HeaderRecSource) != "OPENAI" || rec.Header().Get(HeaderCacheHit) != "false" || rec.Header().Get(HeaderTraceID) != "trace-1" {
		t.Fatalf("completed task headers: %v", rec.Header())
	}
	if fake.got.ForceRefresh || fake.got.Limit != 5 {
		t.Fatalf("async request context: %+v", fake.got)
	}

	rec = do(r, http.MethodGet, "/api/problems/ai-recommendations/daily-limit", "")
	var q async.Quota
	_ = json.Unmarshal(rec.Body.Bytes(), &q)
	if rec.Code != http.StatusOK || q.CanGenerate || q.DailyLimit != 1 || q.Used != 1 {
		t.Fatalf("daily limit: status=%d %+v", rec.Code, q)
	}

	rec = do(r, http.MethodPost, "/api/problems/ai-recommendations/async", "")
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"status":"FAILED"`) {
		t.Fatalf("over quota: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAsyncStatusErrors(t *testing.T) {
	r := newAsyncRouter(t, uuid.New(), &fakeRecommender{}, 0)
	cases := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"bad id", "/api/problems/ai-recommendations/async/not-a-uuid", http.StatusBadRequest, "invalid_task_id"},
		{"unknown task", "/api/problems/ai-recommendations/async/" + uuid.NewString(), http.StatusNotFound, "task_not_found"},
	}
	for _, tc := range cases {
		rec := do(r, http.MethodGet, tc.target, "")
		if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%s: status=%d body=%s", tc.name, rec.Code, rec.Body.String())
		}
	}

	rec := do(r, http.MethodPost, "/api/problems/ai-recommendations/async?limit=99", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_limit") {
		t.Fatalf("bad limit: status=%d body=%s", rec.Code, rec.Body.String())
	}
}
