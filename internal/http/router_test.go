package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	httpH "github.com/yungbote/neurobridge-recommender/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-recommender/internal/http/middleware"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New(prometheus.NewRegistry())
	r := NewRouter(RouterConfig{
		Log:            logger.Nop(),
		Metrics:        m,
		AuthMiddleware: httpMW.NewAuthMiddleware(logger.Nop(), "secret", ""),
		HealthHandler:  httpH.NewHealthHandler(nil),
		RecommendationHandler: httpH.NewRecommendationHandlerWithDeps(httpH.RecommendationHandlerDeps{
			Log: logger.Nop(),
		}),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace header missing")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/problems/ai-recommendations", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("protected route without token: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "recs_api_requests_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
