package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/validate"
)

// HopDefault is appended to the hop list when the terminal policy runs.
const HopDefault = "default"

type Status string

const (
	StatusDone     Status = "DONE"
	StatusTerminal Status = "TERMINAL"
	StatusDeadline Status = "DEADLINE_EXCEEDED"
)

type Providers interface {
	Get(id string) (provider.Provider, bool)
}

type Attempt struct {
	Node     string
	Provider string
	Try      int
	Class    recommend.ErrorClass
	Duration time.Duration
}

type Outcome struct {
	Status        Status
	Items         []recommend.RankedItem
	Dropped       int
	Received      int
	Hops          []string
	FinalProvider string
	// NodeIndex is the position of the successful node among eligible nodes, -1 otherwise.
	NodeIndex int
	// Reason is the last failure class, or NO_ELIGIBLE_NODE / DEADLINE_EXCEEDED.
	Reason   recommend.ErrorClass
	Terminal config.TerminalConfig
	Attempts []Attempt
}

// DroppedRatio is the share of provider items the validator rejected.
func (o Outcome) DroppedRatio() float64 {
	if o.Received == 0 {
		return 0
	}
	return float64(o.Dropped) / float64(o.Received)
}

type Runner struct {
	log       *logger.Logger
	providers Providers
	breakers  *Breakers
	metrics   *observability.Metrics

	mu       sync.Mutex
	limiters map[string]*NodeLimiter
}

func NewRunner(log *logger.Logger, providers Providers, breakers *Breakers, metrics *observability.Metrics) *Runner {
	return &Runner{
		log:       log.With("component", "ProviderChain"),
		providers: providers,
		breakers:  breakers,
		metrics:   metrics,
		limiters:  map[string]*NodeLimiter{},
	}
}

// GuardTimeout is the overall deadline for running c: its slowest node plus buffer.
func GuardTimeout(c config.ChainConfig, buffer time.Duration) time.Duration {
	var max time.Duration
	for _, n := range c.Nodes {
		if n.Timeout.Duration > max {
			max = n.Timeout.Duration
		}
	}
	return max + buffer
}

// EligibleNodes filters by enabled flag and node conditions, preserving order.
func EligibleNodes(c config.ChainConfig, rc recommend.RequestContext) []config.NodeConfig {
	var out []config.NodeConfig
	for _, n := range c.Nodes {
		if n.Enabled != nil && !*n.Enabled {
			continue
		}
		if !Matches(n.Conditions, rc) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Execute walks the chain. ctx carries the overall deadline; its expiry ends the walk with
// StatusDeadline no matter which node is running.
func (r *Runner) Execute(ctx context.Context, c config.ChainConfig, rc recommend.RequestContext, req provider.Request, candidates map[int64]bool) Outcome {
	out := Outcome{NodeIndex: -1, Terminal: c.Terminal}
	log := r.log.With("chain_id", c.ID, "trace_id", rc.TraceID)

	nodes := EligibleNodes(c, rc)
	if len(nodes) == 0 {
		out.Reason = recommend.ErrNoEligibleNode
		return r.terminal(log, c, out)
	}

	for i, n := range nodes {
		out.Hops = append(out.Hops, n.Name)
		res, class := r.runNode(ctx, c.ID, n, rc, req, candidates, &out)
		if class == "" {
			out.Status = StatusDone
			out.Items = res.Items
			out.Dropped = res.Dropped
			out.Received = res.Received
			out.FinalProvider = n.Provider
			out.NodeIndex = i
			r.metrics.IncChainHop(c.ID, n.Name, string(StatusDone))
			r.metrics.AddDroppedItems(n.Provider, res.Dropped)
			return out
		}
		out.Reason = class
		r.metrics.IncChainHop(c.ID, n.Name, string(class))

		if ctx.Err() != nil {
			out.Status = StatusDeadline
			out.Reason = recommend.ErrDeadlineExceeded
			log.Warn("chain deadline exceeded", "node", n.Name, "hops", out.Hops)
			return out
		}
		if class.Terminal() {
			log.Warn("non-retryable provider failure; skipping remaining nodes", "node", n.Name, "class", class)
			break
		}
		if !escalates(n, class) {
			log.Info("failure class not in escalate_on; stopping chain", "node", n.Name, "class", class)
			break
		}
		if i < len(nodes)-1 {
			log.Info("escalating to next node", "from", n.Name, "to", nodes[i+1].Name, "class", class)
		}
	}
	return r.terminal(log, c, out)
}

func (r *Runner) terminal(log *logger.Logger, c config.ChainConfig, out Outcome) Outcome {
	out.Status = StatusTerminal
	out.Hops = append(out.Hops, HopDefault)
	r.metrics.IncChainHop(c.ID, HopDefault, c.Terminal.Strategy)
	log.Warn("chain exhausted; applying terminal policy", "strategy", c.Terminal.Strategy, "reason", out.Reason, "hops", out.Hops)
	return out
}

func escalates(n config.NodeConfig, class recommend.ErrorClass) bool {
	for _, c := range n.EscalateOn {
		if recommend.ErrorClass(c) == class {
			return true
		}
	}
	return false
}

// runNode performs the bounded retry loop for one node and returns "" on success.
func (r *Runner) runNode(ctx context.Context, chainID string, n config.NodeConfig, rc recommend.RequestContext, req provider.Request, candidates map[int64]bool, out *Outcome) (validate.Result, recommend.ErrorClass) {
	p, ok := r.providers.Get(n.Provider)
	if !ok {
		out.Attempts = append(out.Attempts, Attempt{Node: n.Name, Provider: n.Provider, Class: recommend.ErrConfig})
		return validate.Result{}, recommend.ErrConfig
	}

	tries := 1 + maxInt(n.Retry.Attempts, 0)
	var class recommend.ErrorClass
	for try := 0; try < tries; try++ {
		if try > 0 {
			wait := n.Retry.Backoff.Duration << (try - 1)
			if err := sleep(ctx, wait); err != nil {
				return validate.Result{}, recommend.ErrTimeout
			}
		}

		start := time.Now()
		var res validate.Result
		res, class = r.attempt(ctx, chainID, n, p, rc, req, candidates)
		dur := time.Since(start)
		out.Attempts = append(out.Attempts, Attempt{Node: n.Name, Provider: n.Provider, Try: try, Class: class, Duration: dur})
		r.metrics.ObserveProviderAttempt(n.Provider, outcomeLabel(class), dur)

		if class == "" {
			return res, ""
		}
		if !class.Retryable() || ctx.Err() != nil {
			return validate.Result{}, class
		}
		r.log.Debug("retrying node", "node", n.Name, "try", try+1, "class", class)
	}
	return validate.Result{}, class
}

func (r *Runner) attempt(ctx context.Context, chainID string, n config.NodeConfig, p provider.Provider, rc recommend.RequestContext, req provider.Request, candidates map[int64]bool) (validate.Result, recommend.ErrorClass) {
	if scope := r.limiter(chainID, n).Allow(rc.UserID.String()); scope != "" {
		r.metrics.IncRateLimited(n.Name, scope)
		return validate.Result{}, recommend.ErrRateLimited
	}

	nodeCtx := ctx
	if n.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, n.Timeout.Duration)
		defer cancel()
	}

	raw, err := r.breakers.Execute(n.Provider, func() (string, error) {
		return callAsync(nodeCtx, p, req)
	})
	if err != nil {
		return validate.Result{}, provider.Classify(err)
	}

	res, err := validate.Parse(raw, candidates, req.Limit)
	if err != nil {
		r.log.Warn("provider response rejected", "node", n.Name, "provider", n.Provider, "error", err)
		return validate.Result{}, recommend.ErrParsing
	}
	if len(res.Items) == 0 {
		r.log.Warn("provider returned no usable items", "node", n.Name, "provider", n.Provider, "received", res.Received, "dropped", res.Dropped)
		return validate.Result{}, recommend.ErrParsing
	}
	if res.Dropped > 0 {
		r.log.Info("dropped provider items outside candidate set", "provider", n.Provider, "dropped", res.Dropped)
	}
	return res, ""
}

// callAsync runs the provider in its own goroutine and abandons it when ctx ends.
func callAsync(ctx context.Context, p provider.Provider, req provider.Request) (string, error) {
	type result struct {
		raw string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: provider.NewError(recommend.ErrUpstream, p.Name(), fmt.Errorf("provider panic: %v", rec))}
			}
		}()
		raw, err := p.Rank(ctx, req)
		ch <- result{raw: raw, err: err}
	}()
	select {
	case res := <-ch:
		return res.raw, res.err
	case <-ctx.Done():
		return "", provider.NewError(recommend.ErrTimeout, p.Name(), ctx.Err())
	}
}

func (r *Runner) limiter(chainID string, n config.NodeConfig) *NodeLimiter {
	key := chainID + "|" + n.Name
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = NewNodeLimiter(n.RateLimit)
		r.limiters[key] = l
	}
	return l
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func outcomeLabel(c recommend.ErrorClass) string {
	if c == "" {
		return "success"
	}
	return string(c)
}
