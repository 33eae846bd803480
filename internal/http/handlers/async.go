package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/http/response"
	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/async"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/reqctx"
)

const (
	HeaderTaskID = "X-Task-Id"

	asyncRoute = "/api/problems/ai-recommendations/async/"
)

type AsyncRecommender interface {
	Submit(ctx context.Context, rc recommend.RequestContext) (*async.Task, error)
	Status(ctx context.Context, userID, taskID uuid.UUID) (*async.View, error)
	DailyLimit(ctx context.Context, userID uuid.UUID) (*async.Quota, error)
}

type AsyncRecommendationHandlerDeps struct {
	Log     *logger.Logger
	Builder *reqctx.Builder
	Tasks   AsyncRecommender
}

type AsyncRecommendationHandler struct {
	log     *logger.Logger
	builder *reqctx.Builder
	tasks   AsyncRecommender
}

func NewAsyncRecommendationHandlerWithDeps(d AsyncRecommendationHandlerDeps) *AsyncRecommendationHandler {
	return &AsyncRecommendationHandler{
		log:     d.Log.With("handler", "AsyncRecommendationHandler"),
		builder: d.Builder,
		tasks:   d.Tasks,
	}
}

// Submit answers POST /api/problems/ai-recommendations/async with 202 and the task.
// Query parameters are the same as the synchronous route; force refresh is ignored.
func (h *AsyncRecommendationHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	params := requestParams(c)
	params.ForceRefresh = ""
	rc, err := h.builder.Build(params, reqctx.Identity{UserID: rd.UserID, Tier: rd.Tier})
	if err != nil {
		response.RespondAPIError(c, err, "invalid_request")
		return
	}

	task, err := h.tasks.Submit(ctx, rc)
	if err != nil {
		h.log.Error("async submit failed", "user_id", rd.UserID.String(), "trace_id", rc.TraceID, "error", err)
		response.RespondAPIError(c, err, "async_submit_failed")
		return
	}
	c.Header(HeaderTaskID, task.ID.String())
	c.Header("Location", asyncRoute+task.ID.String())
	c.Header(HeaderTraceID, rc.TraceID)
	c.JSON(http.StatusAccepted, task)
}

// Status answers GET /api/problems/ai-recommendations/async/:taskId. Completed tasks
// carry the same headers as the synchronous route.
func (h *AsyncRecommendationHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	taskID, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_task_id", "taskId must be a uuid"), "invalid_task_id")
		return
	}

	view, err := h.tasks.Status(ctx, rd.UserID, taskID)
	if err != nil {
		response.RespondAPIError(c, err, "async_status_failed")
		return
	}
	c.Header(HeaderTaskID, view.ID.String())
	if view.Result != nil {
		if view.Result.Items == nil {
			view.Result.Items = []recommend.RecommendationItem{}
		}
		writeRecommendationHeaders(c, view.Result)
	}
	response.RespondOK(c, view)
}

// DailyLimit answers GET /api/problems/ai-recommendations/daily-limit.
func (h *AsyncRecommendationHandler) DailyLimit(c *gin.Context) {
	ctx := c.Request.Context()
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	q, err := h.tasks.DailyLimit(ctx, rd.UserID)
	if err != nil {
		h.log.Warn("daily limit lookup failed", "user_id", rd.UserID.String(), "error", err)
		response.RespondAPIError(c, err, "daily_limit_unavailable")
		return
	}
	response.RespondOK(c, q)
}
