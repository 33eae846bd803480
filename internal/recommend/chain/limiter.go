package chain

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/neurobridge-recommender/internal/config"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NodeLimiter gates a node with a global token bucket and one bucket per user.
// A zero RPS disables the corresponding bucket.
type NodeLimiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	users     map[string]*userLimiter
	userRate  rate.Limit
	userBurst int
	lastSweep time.Time
	now       func() time.Time
}

func NewNodeLimiter(cfg config.RateLimitConfig) *NodeLimiter {
	l := &NodeLimiter{
		users:     map[string]*userLimiter{},
		userRate:  rate.Limit(cfg.PerUserRPS),
		userBurst: maxInt(cfg.PerUserBurst, 1),
		now:       time.Now,
	}
	if cfg.RPS > 0 {
		l.global = rate.NewLimiter(rate.Limit(cfg.RPS), maxInt(cfg.Burst, 1))
	}
	l.lastSweep = l.now()
	return l
}

// Allow returns "" when both buckets admit the call, else the scope that rejected it.
// A global token reserved for a call the user bucket rejects is handed back.
func (l *NodeLimiter) Allow(userKey string) string {
	now := l.now()
	var g *rate.Reservation
	if l.global != nil {
		g = l.global.ReserveN(now, 1)
		if !g.OK() || g.DelayFrom(now) > 0 {
			g.CancelAt(now)
			return "global"
		}
	}
	if l.userRate <= 0 || userKey == "" {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweep(now)
	}
	e, ok := l.users[userKey]
	if !ok {
		e = &userLimiter{limiter: rate.NewLimiter(l.userRate, l.userBurst)}
		l.users[userKey] = e
	}
	e.lastAccess = now
	if !e.limiter.AllowN(now, 1) {
		if g != nil {
			g.CancelAt(now)
		}
		return "user"
	}
	return ""
}

func (l *NodeLimiter) sweep(now time.Time) {
	for k, e := range l.users {
		if now.Sub(e.lastAccess) > limiterIdleTTL {
			delete(l.users, k)
		}
	}
	l.lastSweep = now
}

func (l *NodeLimiter) trackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
