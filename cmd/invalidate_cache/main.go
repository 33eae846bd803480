package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	redisclient "github.com/yungbote/neurobridge-recommender/internal/clients/redis"
	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			*l = append(*l, p)
		}
	}
	return nil
}

func main() {
	var users, problems idList
	var trigger string
	var dryRun bool
	flag.Var(&users, "user", "user id whose cached recommendations are dropped (repeatable)")
	flag.Var(&problems, "problem", "problem id whose cached recommendations are dropped (repeatable)")
	flag.StringVar(&trigger, "trigger", "", "metric label for the invalidation (default depends on target)")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned invalidations without executing")
	flag.Parse()

	userIDs := make([]uuid.UUID, 0, len(users))
	for _, s := range users {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			fmt.Printf("skip invalid user id %q\n", s)
			continue
		}
		userIDs = append(userIDs, id)
	}
	problemIDs := make([]int64, 0, len(problems))
	for _, s := range problems {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			fmt.Printf("skip invalid problem id %q\n", s)
			continue
		}
		problemIDs = append(problemIDs, id)
	}
	if len(userIDs) == 0 && len(problemIDs) == 0 {
		fmt.Println("nothing to invalidate: pass -user and/or -problem")
		os.Exit(2)
	}
	if dryRun {
		fmt.Printf("dry run: users=%d problems=%v\n", len(userIDs), problemIDs)
		return
	}

	log, err := logger.New("production")
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		fmt.Println("redis.addr is not configured; the in-process cache of running servers cannot be reached")
		os.Exit(1)
	}

	ctx := context.Background()
	rdb, err := redisclient.NewClient(log, cfg.Redis)
	if err != nil {
		fmt.Printf("init redis: %v\n", err)
		os.Exit(1)
	}
	rc := cache.New(log, cache.NewRedisStore(rdb), cfg.Recommend.Cache, nil)

	total, failed := invalidate(ctx, rc, userIDs, problemIDs, trigger)
	_ = rdb.Close()
	fmt.Printf("invalidated %d cached recommendation(s)\n", total)
	if failed > 0 {
		fmt.Printf("%d invalidation(s) failed\n", failed)
		os.Exit(1)
	}
}

type invalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID, trigger string) (int, error)
	InvalidateProblems(ctx context.Context, problemIDs []int64, trigger string) (int, error)
}

// invalidate returns the number of removed entries and the number of failed calls.
func invalidate(ctx context.Context, c invalidator, userIDs []uuid.UUID, problemIDs []int64, trigger string) (int, int) {
	total, failed := 0, 0
	for _, uid := range userIDs {
		t := trigger
		if t == "" {
			t = cache.TriggerPreferencesChanged
		}
		n, err := c.InvalidateUser(ctx, uid, t)
		if err != nil {
			fmt.Printf("invalidate user %s: %v\n", uid, err)
			failed++
			continue
		}
		total += n
	}
	if len(problemIDs) > 0 {
		t := trigger
		if t == "" {
			t = cache.TriggerProblemsModified
		}
		n, err := c.InvalidateProblems(ctx, problemIDs, t)
		if err != nil {
			fmt.Printf("invalidate problems: %v\n", err)
			failed++
		}
		total += n
	}
	return total, failed
}
