package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

// Input is the client payload for recommendation feedback.
type Input struct {
	RecommendationID string `json:"recommendationId" validate:"required,max=128"`
	ProblemID        int64  `json:"problemId" validate:"required,gt=0"`
	Action           string `json:"action" validate:"required,oneof=accepted skipped solved hidden"`
	Helpful          *bool  `json:"helpful,omitempty"`
	Rating           *int   `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment          string `json:"comment,omitempty" validate:"max=1000"`
}

type Service struct {
	log     *logger.Logger
	store   recommend.FeedbackStore
	cache   *cache.Cache
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(log *logger.Logger, store recommend.FeedbackStore, c *cache.Cache, m *observability.Metrics) *Service {
	return &Service{
		log:     log.With("service", "FeedbackService"),
		store:   store,
		cache:   c,
		metrics: m,
		now:     time.Now,
	}
}

// Submit validates, persists and invalidates the user's cached recommendations.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in Input) (*recommend.Feedback, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("missing user"))
	}
	in.RecommendationID = strings.TrimSpace(in.RecommendationID)
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	if err := validate(in); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "feedback_unavailable", errors.New("feedback store not configured"))
	}

	fb := &recommend.Feedback{
		ID:               uuid.New(),
		UserID:           userID,
		RecommendationID: in.RecommendationID,
		ProblemID:        in.ProblemID,
		Action:           recommend.FeedbackAction(in.Action),
		Helpful:          in.Helpful,
		Rating:           in.Rating,
		Comment:          in.Comment,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}

	if _, err := s.cache.InvalidateUser(ctx, userID, cache.TriggerFeedback); err != nil {
		s.log.Warn("cache invalidation after feedback failed", "user_id", userID.String(), "error", err)
	}
	s.metrics.IncFeedback(in.Action)
	s.log.Debug("feedback recorded",
		"user_id", userID.String(),
		"problem_id", in.ProblemID,
		"action", in.Action,
	)
	return fb, nil
}

var (
	validateOnce sync.Once
	v            *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
	})
	return v
}

func validate(in Input) error {
	err := validatorInstance().Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.BadRequest("invalid_feedback", "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apierr.BadRequest("invalid_feedback", "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
