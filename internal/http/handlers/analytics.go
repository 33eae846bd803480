package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/http/response"
	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/analytics"
)

// AdminTier may read and reset any learner's profile.
const AdminTier = "ADMIN"

type ProfileAnalytics interface {
	Profile(ctx context.Context, userID uuid.UUID, useCache bool) (*analytics.Profile, error)
	Summary(ctx context.Context, userID uuid.UUID) (*analytics.Summary, error)
	Domains(ctx context.Context, userID uuid.UUID) (*analytics.Domains, error)
	TagAffinity(ctx context.Context, userID uuid.UUID) (*analytics.TagAffinity, error)
	InvalidateProfile(ctx context.Context, userID uuid.UUID) (int, error)
}

type AnalyticsHandlerDeps struct {
	Log       *logger.Logger
	Analytics ProfileAnalytics
}

type AnalyticsHandler struct {
	log       *logger.Logger
	analytics ProfileAnalytics
	now       func() time.Time
}

func NewAnalyticsHandlerWithDeps(d AnalyticsHandlerDeps) *AnalyticsHandler {
	return &AnalyticsHandler{
		log:       d.Log.With("handler", "AnalyticsHandler"),
		analytics: d.Analytics,
		now:       time.Now,
	}
}

// CurrentProfile answers GET /api/analytics/user-profile for the caller.
func (h *AnalyticsHandler) CurrentProfile(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	h.respond(c, func(ctx context.Context) (any, error) {
		return h.analytics.Profile(ctx, rd.UserID, true)
	})
}

// Profile answers GET /api/analytics/user-profile/:userId[?useCache=false].
func (h *AnalyticsHandler) Profile(c *gin.Context) {
	userID, ok := h.target(c)
	if !ok {
		return
	}
	useCache := true
	if raw := strings.TrimSpace(c.Query("useCache")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondAPIError(c, apierr.BadRequest("invalid_request", "useCache must be a boolean"), "invalid_request")
			return
		}
		useCache = v
	}
	h.respond(c, func(ctx context.Context) (any, error) {
		return h.analytics.Profile(ctx, userID, useCache)
	})
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	userID, ok := h.target(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (any, error) {
		return h.analytics.Summary(ctx, userID)
	})
}

func (h *AnalyticsHandler) Domains(c *gin.Context) {
	userID, ok := h.target(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (any, error) {
		return h.analytics.Domains(ctx, userID)
	})
}

func (h *AnalyticsHandler) TagAffinity(c *gin.Context) {
	userID, ok := h.target(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (any, error) {
		return h.analytics.TagAffinity(ctx, userID)
	})
}

// InvalidateCache answers DELETE /api/analytics/user-profile/:userId/cache.
func (h *AnalyticsHandler) InvalidateCache(c *gin.Context) {
	userID, ok := h.target(c)
	if !ok {
		return
	}
	if _, err := h.analytics.InvalidateProfile(c.Request.Context(), userID); err != nil {
		h.log.Warn("profile cache invalidation failed", "user_id", userID.String(), "error", err)
		response.RespondAPIError(c, err, "invalidation_failed")
		return
	}
	response.RespondOK(c, gin.H{
		"status":    "success",
		"message":   fmt.Sprintf("Profile cache invalidated for user %s", userID),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// target resolves :userId and checks the caller may see it.
func (h *AnalyticsHandler) target(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil || userID == uuid.Nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_user_id", "userId must be a uuid"), "invalid_user_id")
		return uuid.Nil, false
	}
	if userID != rd.UserID && !strings.EqualFold(rd.Tier, AdminTier) {
		response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("cannot read another user's profile"))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *AnalyticsHandler) respond(c *gin.Context, load func(ctx context.Context) (any, error)) {
	out, err := load(c.Request.Context())
	if err != nil {
		h.log.Error("profile analytics failed", "path", c.FullPath(), "error", err)
		response.RespondAPIError(c, err, "profile_unavailable")
		return
	}
	response.RespondOK(c, out)
}
