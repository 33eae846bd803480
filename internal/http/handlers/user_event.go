package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/http/response"
	"github.com/yungbote/neurobridge-recommender/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

// Invalidator drops cached recommendations by user or by problem.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID, trigger string) (int, error)
	InvalidateProblems(ctx context.Context, problemIDs []int64, trigger string) (int, error)
}

type EventHandlerDeps struct {
	Log   *logger.Logger
	Cache Invalidator
}

type EventHandler struct {
	log   *logger.Logger
	cache Invalidator
}

func NewEventHandlerWithDeps(d EventHandlerDeps) *EventHandler {
	return &EventHandler{log: d.Log.With("handler", "EventHandler"), cache: d.Cache}
}

type EventInput struct {
	Type       string  `json:"type"`
	ProblemIDs []int64 `json:"problemIds,omitempty"`
}

type ingestEventsRequest struct {
	Events []EventInput `json:"events"`
}

func isUserScopedEvent(t string) bool {
	switch t {
	case cache.TriggerReviewCompleted, cache.TriggerPreferencesChanged, cache.TriggerFSRSParamsChanged:
		return true
	default:
		return false
	}
}

// Ingest answers POST /api/recommendations/events. Accepts {"events": [...]}, a bare array or a single event.
func (h *EventHandler) Ingest(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(raw) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_body", nil)
		return
	}
	inputs, err := decodeEvents(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	for i := range inputs {
		inputs[i].Type = strings.ToLower(strings.TrimSpace(inputs[i].Type))
		if err := checkEvent(inputs[i]); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
			return
		}
	}

	ctx := c.Request.Context()
	invalidated := 0
	userDone := false
	for _, ev := range inputs {
		var n int
		var err error
		if isUserScopedEvent(ev.Type) {
			if userDone {
				continue
			}
			userDone = true
			n, err = h.cache.InvalidateUser(ctx, rd.UserID, ev.Type)
		} else {
			n, err = h.cache.InvalidateProblems(ctx, ev.ProblemIDs, ev.Type)
		}
		if err != nil {
			h.log.Warn("cache invalidation failed", "user_id", rd.UserID.String(), "event", ev.Type, "error", err)
			continue
		}
		invalidated += n
	}
	response.RespondOK(c, gin.H{
		"ok":          true,
		"ingested":    len(inputs),
		"invalidated": invalidated,
	})
}

func decodeEvents(raw []byte) ([]EventInput, error) {
	var env ingestEventsRequest
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Events) > 0 {
		return env.Events, nil
	}
	var arr []EventInput
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var one EventInput
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	if one.Type == "" {
		return nil, fmt.Errorf("no events in body")
	}
	return []EventInput{one}, nil
}

func checkEvent(ev EventInput) error {
	if isUserScopedEvent(ev.Type) {
		return nil
	}
	if ev.Type != cache.TriggerProblemsModified {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if len(ev.ProblemIDs) == 0 {
		return fmt.Errorf("%s requires problemIds", ev.Type)
	}
	return nil
}
