package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/http/response"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/feedback"
)

type FeedbackSubmitter interface {
	Submit(ctx context.Context, userID uuid.UUID, in feedback.Input) (*recommend.Feedback, error)
}

type FeedbackHandlerDeps struct {
	Log      *logger.Logger
	Feedback FeedbackSubmitter
}

type FeedbackHandler struct {
	log *logger.Logger
	svc FeedbackSubmitter
}

func NewFeedbackHandlerWithDeps(d FeedbackHandlerDeps) *FeedbackHandler {
	return &FeedbackHandler{log: d.Log.With("handler", "FeedbackHandler"), svc: d.Feedback}
}

// Submit answers POST /api/problems/:id/recommendation-feedback. The path id wins over the body.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_problem_id", errors.New("problem id must be a positive integer"))
		return
	}
	var in feedback.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	in.ProblemID = problemID

	fb, err := h.svc.Submit(c.Request.Context(), rd.UserID, in)
	if err != nil {
		h.log.Warn("feedback rejected", "user_id", rd.UserID.String(), "problem_id", problemID, "error", err)
		response.RespondAPIError(c, err, "feedback_failed")
		return
	}
	response.RespondOK(c, gin.H{
		"status":     "ok",
		"id":         fb.ID.String(),
		"recordedAt": fb.CreatedAt.UTC().Format(time.RFC3339),
	})
}
