package chain

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
)

type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// Breakers holds one circuit breaker per provider id.
type Breakers struct {
	log     *logger.Logger
	metrics *observability.Metrics
	cfg     BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

func NewBreakers(log *logger.Logger, metrics *observability.Metrics, cfg BreakerConfig) *Breakers {
	return &Breakers{
		log:      log.With("component", "CircuitBreaker"),
		metrics:  metrics,
		cfg:      cfg,
		breakers: map[string]*gobreaker.CircuitBreaker[string]{},
	}
}

func (b *Breakers) get(providerID string) *gobreaker.CircuitBreaker[string] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[providerID]; ok {
		return cb
	}
	cfg := b.cfg
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        providerID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Only transport-level failures count against provider health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			c := provider.Classify(err)
			return c != recommend.ErrTimeout && c != recommend.ErrUpstream
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.metrics.SetBreakerState(name, int(to))
			b.log.Warn("circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	b.breakers[providerID] = cb
	return cb
}

// Execute runs fn behind the provider's breaker. An open breaker is reported as UPSTREAM_ERROR.
func (b *Breakers) Execute(providerID string, fn func() (string, error)) (string, error) {
	if b == nil {
		return fn()
	}
	out, err := b.get(providerID).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", provider.NewError(recommend.ErrUpstream, providerID, err)
	}
	return out, err
}

func (b *Breakers) State(providerID string) gobreaker.State {
	return b.get(providerID).State()
}
