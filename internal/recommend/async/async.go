// Package async runs recommendation requests in the background and enforces the
// per-user daily generation quota. Tasks, results and quota counters live in the
// same store as the recommendation cache, so a redis deployment shares them across
// replicas.
package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Progress is the coarse completion percentage reported to clients.
func (s Status) Progress() int {
	switch s {
	case StatusPending:
		return 10
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

const (
	MsgQueued       = "Recommendation task queued"
	MsgProcessing   = "Generating recommendations"
	MsgCompleted    = "Recommendations ready"
	MsgLimitReached = "Daily recommendation limit reached. Please try again tomorrow."
	MsgQueueFull    = "Recommendation queue is full. Please try again later."
	MsgFailed       = "Recommendation generation failed"
)

type Task struct {
	ID          uuid.UUID  `json:"taskId"`
	UserID      uuid.UUID  `json:"userId"`
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// View is a task as returned to its owner.
type View struct {
	Task
	Progress int                 `json:"progress"`
	Result   *recommend.Response `json:"result,omitempty"`
}

type Quota struct {
	UserID      uuid.UUID `json:"userId"`
	CanGenerate bool      `json:"canGenerate"`
	DailyLimit  int       `json:"dailyLimit"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	Message     string    `json:"message"`
}

type Recommender interface {
	Recommend(ctx context.Context, rc recommend.RequestContext) (*recommend.Response, error)
}

// Store is satisfied by both cache stores.
type Store interface {
	cache.Store
	cache.Counter
}

func TaskKey(id uuid.UUID) string   { return "rec-async:task:" + id.String() }
func ResultKey(id uuid.UUID) string { return "rec-async:result:" + id.String() }

// DailyKey scopes the quota counter to the UTC calendar day.
func DailyKey(userID uuid.UUID, now time.Time) string {
	return "rec-async:daily:" + userID.String() + ":" + now.UTC().Format("2006-01-02")
}

var ErrNotFound = apierr.New(http.StatusNotFound, "task_not_found", errors.New("task not found"))

type job struct {
	taskID   uuid.UUID
	rc       recommend.RequestContext
	reserved bool
}

type Service struct {
	log   *logger.Logger
	store Store
	rec   Recommender
	cfg   config.AsyncConfig
	jobs  chan job
	now   func() time.Time
	newID func() uuid.UUID

	startOnce sync.Once
}

func NewService(log *logger.Logger, store Store, rec Recommender, cfg config.AsyncConfig) *Service {
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 64
	}
	return &Service{
		log:   log.With("service", "AsyncRecommendationService"),
		store: store,
		rec:   rec,
		cfg:   cfg,
		jobs:  make(chan job, queue),
		now:   time.Now,
		newID: uuid.New,
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled; queued
// tasks that never ran expire with their ttl.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		n := s.cfg.Workers
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			go s.work(ctx)
		}
	})
}

// Submit records a task for rc and queues it. A user over the daily quota gets a
// FAILED task back rather than an error, so polling clients see one shape.
func (s *Service) Submit(ctx context.Context, rc recommend.RequestContext) (*Task, error) {
	if !s.cfg.Enabled {
		return nil, apierr.New(http.StatusServiceUnavailable, "async_disabled", errors.New("async recommendations are disabled"))
	}
	if rc.UserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("missing user"))
	}
	rc.ForceRefresh = false

	task := &Task{
		ID:        s.newID(),
		UserID:    rc.UserID,
		Status:    StatusPending,
		Message:   MsgQueued,
		CreatedAt: s.now().UTC(),
	}
	log := s.log.With("task_id", task.ID.String(), "user_id", rc.UserID.String())

	allowed, reserved := s.reserve(ctx, rc.UserID)
	if !allowed {
		s.finish(task, StatusFailed, MsgLimitReached)
		if err := s.saveTask(ctx, task); err != nil {
			return nil, err
		}
		log.Info("daily recommendation limit reached")
		return task, nil
	}

	if err := s.saveTask(ctx, task); err != nil {
		s.refund(ctx, rc.UserID, reserved)
		return nil, err
	}
	select {
	case s.jobs <- job{taskID: task.ID, rc: rc, reserved: reserved}:
		log.Debug("recommendation task queued")
	default:
		s.refund(ctx, rc.UserID, reserved)
		s.finish(task, StatusFailed, MsgQueueFull)
		if err := s.saveTask(ctx, task); err != nil {
			return nil, err
		}
		log.Warn("recommendation queue full")
	}
	return task, nil
}

// Status returns the caller's task; tasks owned by someone else look missing.
func (s *Service) Status(ctx context.Context, userID, taskID uuid.UUID) (*View, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.UserID != userID {
		return nil, ErrNotFound
	}
	view := &View{Task: *task, Progress: task.Status.Progress()}
	if task.Status != StatusCompleted {
		return view, nil
	}
	raw, ok, err := s.store.Get(ctx, ResultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("load task result: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	var resp recommend.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	view.Result = &resp
	return view, nil
}

// DailyLimit reports the caller's quota for the current UTC day.
func (s *Service) DailyLimit(ctx context.Context, userID uuid.UUID) (*Quota, error) {
	limit := s.cfg.DailyLimit
	q := &Quota{UserID: userID, DailyLimit: limit}
	used, err := s.used(ctx, userID)
	if err != nil {
		return nil, err
	}
	q.Used = used
	if limit == 0 {
		q.CanGenerate = true
		q.Remaining = -1
		q.Message = "No daily recommendation limit"
		return q, nil
	}
	q.Remaining = max(limit-used, 0)
	q.CanGenerate = q.Remaining > 0
	if q.CanGenerate {
		q.Message = "You can generate AI recommendations today"
	} else {
		q.Message = MsgLimitReached
	}
	return q, nil
}

func (s *Service) used(ctx context.Context, userID uuid.UUID) (int, error) {
	raw, ok, err := s.store.Get(ctx, DailyKey(userID, s.now()))
	if err != nil {
		return 0, fmt.Errorf("load daily usage: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("decode daily usage: %w", err)
	}
	return max(n, 0), nil
}

// reserve takes one unit of the quota up front so concurrent submits cannot both
// pass the check. When the counter store is down the request is let through
// without a reservation.
func (s *Service) reserve(ctx context.Context, userID uuid.UUID) (allowed, reserved bool) {
	if s.cfg.DailyLimit <= 0 {
		return true, false
	}
	n, err := s.store.IncrBy(ctx, DailyKey(userID, s.now()), 1, 48*time.Hour)
	if err != nil {
		s.log.Warn("daily quota check failed; allowing request", "user_id", userID.String(), "error", err)
		return true, false
	}
	if n > int64(s.cfg.DailyLimit) {
		s.refund(ctx, userID, true)
		return false, false
	}
	return true, true
}

func (s *Service) refund(ctx context.Context, userID uuid.UUID, reserved bool) {
	if !reserved {
		return
	}
	if _, err := s.store.IncrBy(ctx, DailyKey(userID, s.now()), -1, 48*time.Hour); err != nil {
		s.log.Warn("daily quota refund failed", "user_id", userID.String(), "error", err)
	}
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.process(ctx, j)
		}
	}
}

func (s *Service) process(ctx context.Context, j job) {
	log := s.log.With("task_id", j.taskID.String(), "user_id", j.rc.UserID.String())
	task := &Task{ID: j.taskID, UserID: j.rc.UserID, CreatedAt: s.now().UTC()}
	if stored, err := s.loadTask(ctx, j.taskID); err == nil && stored != nil {
		task = stored
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("recommendation task panic", "panic", r)
			s.refund(ctx, j.rc.UserID, j.reserved)
			s.finish(task, StatusFailed, MsgFailed)
			_ = s.saveTask(ctx, task)
		}
	}()

	task.Status = StatusProcessing
	task.Message = MsgProcessing
	if err := s.saveTask(ctx, task); err != nil {
		log.Warn("mark task processing failed", "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout())
	resp, err := s.rec.Recommend(runCtx, j.rc)
	cancel()
	if err == nil && resp != nil {
		err = s.saveResult(ctx, j.taskID, resp)
	} else if err == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		log.Warn("recommendation task failed", "error", err)
		s.refund(ctx, j.rc.UserID, j.reserved)
		msg := MsgFailed
		if ae := apierr.As(err, ""); ae != nil && ae.Code != "" {
			msg = MsgFailed + ": " + ae.Code
		}
		s.finish(task, StatusFailed, msg)
	} else {
		s.finish(task, StatusCompleted, MsgCompleted)
	}
	if err := s.saveTask(ctx, task); err != nil {
		log.Warn("save finished task failed", "error", err)
	}
	log.Debug("recommendation task finished", "status", string(task.Status))
}

func (s *Service) timeout() time.Duration {
	if d := s.cfg.Timeout.Duration; d > 0 {
		return d
	}
	return 30 * time.Second
}

func (s *Service) finish(task *Task, status Status, msg string) {
	now := s.now().UTC()
	task.Status = status
	task.Message = msg
	task.CompletedAt = &now
}

func (s *Service) saveTask(ctx context.Context, task *Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	ttl := s.cfg.TaskTTL.Duration
	if task.Status == StatusCompleted {
		// a completed task lives as long as its result
		ttl = max(ttl, s.cfg.ResultTTL.Duration)
	}
	if err := s.store.Set(ctx, TaskKey(task.ID), raw, ttl, nil); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Service) saveResult(ctx context.Context, taskID uuid.UUID, resp *recommend.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	if err := s.store.Set(ctx, ResultKey(taskID), raw, s.cfg.ResultTTL.Duration, nil); err != nil {
		return fmt.Errorf("save task result: %w", err)
	}
	return nil
}

func (s *Service) loadTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	raw, ok, err := s.store.Get(ctx, TaskKey(id))
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}
