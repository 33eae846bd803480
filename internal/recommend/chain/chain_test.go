package chain

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider/registry"
)

type fakeProvider struct {
	name  string
	calls int32
	fn    func(ctx context.Context, call int32) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Rank(ctx context.Context, req provider.Request) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, n)
}

func okJSON(context.Context, int32) (string, error) {
	return `{"items":[{"problemId":1,"reason":"r","confidence":0.8,"strategy":"weakness_focus","score":0.8}]}`, nil
}

func failWith(class recommend.ErrorClass) func(context.Context, int32) (string, error) {
	return func(context.Context, int32) (string, error) {
		return "", provider.NewError(class, "fake", errors.New(string(class)))
	}
}

func hang(ctx context.Context, _ int32) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func node(name, prov string, timeout time.Duration, escalate ...recommend.ErrorClass) config.NodeConfig {
	n := config.NodeConfig{Name: name, Provider: prov, Timeout: config.Duration{Duration: timeout}}
	for _, c := range escalate {
		n.EscalateOn = append(n.EscalateOn, string(c))
	}
	return n
}

func newRunner(ps ...provider.Provider) *Runner {
	return NewRunner(logger.Nop(), registry.NewRegistry(ps...), NewBreakers(logger.Nop(), nil, DefaultBreakerConfig()), nil)
}

var (
	testRC     = recommend.RequestContext{UserID: uuid.New(), Tier: "BRONZE", ABGroup: "A", Route: recommend.DefaultRoute}
	testReq    = provider.Request{CandidateIDs: []int64{1, 2}, Limit: 5}
	candidates = map[int64]bool{1: true, 2: true}
	fallback   = config.TerminalConfig{Strategy: "fallback", StatusCode: 503}
)

func TestEscalationRecordsHops(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: failWith(recommend.ErrUpstream)}
	b := &fakeProvider{name: "pb", fn: okJSON}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", time.Second, recommend.ErrUpstream),
		node("B", "pb", time.Second),
	}, Terminal: fallback}

	out := newRunner(a, b).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusDone {
		t.Fatalf("status=%s reason=%s", out.Status, out.Reason)
	}
	if !reflect.DeepEqual(out.Hops, []string{"A", "B"}) {
		t.Fatalf("hops=%v", out.Hops)
	}
	if out.FinalProvider != "pb" || out.NodeIndex != 1 || len(out.Items) != 1 {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestGuardTimeoutUsesSlowestNode(t *testing.T) {
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", 50*time.Millisecond),
		node("B", "pb", 80*time.Millisecond),
	}}
	if got := GuardTimeout(c, 20*time.Millisecond); got != 100*time.Millisecond {
		t.Fatalf("guard=%v", got)
	}
}

func TestDeadlineGuardAbandonsHangingNodes(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: hang}
	b := &fakeProvider{name: "pb", fn: hang}
	// A times out well before the parent deadline; B outlives it.
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", 50*time.Millisecond, recommend.ErrTimeout),
		node("B", "pb", 5*time.Second, recommend.ErrTimeout),
	}, Terminal: fallback}

	deadline := 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	out := newRunner(a, b).Execute(ctx, c, testRC, testReq, candidates)
	elapsed := time.Since(start)

	if out.Status != StatusDeadline || out.Reason != recommend.ErrDeadlineExceeded {
		t.Fatalf("status=%s reason=%s", out.Status, out.Reason)
	}
	if !reflect.DeepEqual(out.Hops, []string{"A", "B"}) {
		t.Fatalf("hops=%v", out.Hops)
	}
	if elapsed > deadline+time.Second {
		t.Fatalf("chain returned too late: %v", elapsed)
	}
}

func TestConfigErrorSkipsToTerminal(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: failWith(recommend.ErrConfig)}
	b := &fakeProvider{name: "pb", fn: okJSON}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", time.Second, recommend.ErrConfig, recommend.ErrUpstream),
		node("B", "pb", time.Second),
	}, Terminal: fallback}
	c.Nodes[0].Retry = config.RetryConfig{Attempts: 3}

	out := newRunner(a, b).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusTerminal || out.Reason != recommend.ErrConfig {
		t.Fatalf("status=%s reason=%s", out.Status, out.Reason)
	}
	if !reflect.DeepEqual(out.Hops, []string{"A", HopDefault}) {
		t.Fatalf("hops=%v", out.Hops)
	}
	if atomic.LoadInt32(&a.calls) != 1 || atomic.LoadInt32(&b.calls) != 0 {
		t.Fatalf("calls a=%d b=%d", a.calls, b.calls)
	}
}

func TestFailureOutsideEscalateOnIsTerminal(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: func(context.Context, int32) (string, error) { return "not json", nil }}
	b := &fakeProvider{name: "pb", fn: okJSON}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", time.Second, recommend.ErrTimeout),
		node("B", "pb", time.Second),
	}, Terminal: fallback}

	out := newRunner(a, b).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusTerminal || out.Reason != recommend.ErrParsing {
		t.Fatalf("status=%s reason=%s", out.Status, out.Reason)
	}
	if atomic.LoadInt32(&b.calls) != 0 {
		t.Fatalf("B must not run")
	}
}

func TestParsingErrorEscalatesWhenConfigured(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: func(context.Context, int32) (string, error) { return "sorry", nil }}
	b := &fakeProvider{name: "pb", fn: func(context.Context, int32) (string, error) {
		return `{"items":[{"problemId":1,"confidence":0.9},{"problemId":3,"confidence":0.9}]}`, nil
	}}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{
		node("A", "pa", time.Second, recommend.ErrParsing),
		node("B", "pb", time.Second),
	}, Terminal: fallback}

	out := newRunner(a, b).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusDone || out.Dropped != 1 || len(out.Items) != 1 {
		t.Fatalf("outcome=%+v", out)
	}
	if out.DroppedRatio() != 0.5 {
		t.Fatalf("ratio=%v", out.DroppedRatio())
	}
}

func TestNoEligibleNode(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: okJSON}
	n := node("A", "pa", time.Second)
	n.Conditions = config.MatchConfig{Tiers: []string{"gold"}}
	disabled := node("B", "pa", time.Second)
	off := false
	disabled.Enabled = &off
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{n, disabled}, Terminal: fallback}

	out := newRunner(a).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusTerminal || out.Reason != recommend.ErrNoEligibleNode {
		t.Fatalf("status=%s reason=%s", out.Status, out.Reason)
	}
	if !reflect.DeepEqual(out.Hops, []string{HopDefault}) {
		t.Fatalf("hops=%v", out.Hops)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: func(ctx context.Context, call int32) (string, error) {
		if call == 1 {
			return "", provider.NewError(recommend.ErrUpstream, "pa", errors.New("502"))
		}
		return okJSON(ctx, call)
	}}
	n := node("A", "pa", time.Second)
	n.Retry = config.RetryConfig{Attempts: 2, Backoff: config.Duration{Duration: time.Millisecond}}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{n}, Terminal: fallback}

	out := newRunner(a).Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Status != StatusDone || len(out.Attempts) != 2 {
		t.Fatalf("status=%s attempts=%+v", out.Status, out.Attempts)
	}
}

func TestRateLimitedIsNotRetried(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: okJSON}
	n := node("A", "pa", time.Second)
	n.Retry = config.RetryConfig{Attempts: 3}
	n.RateLimit = config.RateLimitConfig{PerUserRPS: 0.001, PerUserBurst: 1}
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{n}, Terminal: fallback}
	r := newRunner(a)

	if out := r.Execute(context.Background(), c, testRC, testReq, candidates); out.Status != StatusDone {
		t.Fatalf("first call should pass: %+v", out)
	}
	out := r.Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Reason != recommend.ErrRateLimited || len(out.Attempts) != 1 {
		t.Fatalf("reason=%s attempts=%d", out.Reason, len(out.Attempts))
	}
	if atomic.LoadInt32(&a.calls) != 1 {
		t.Fatalf("provider should not be called when limited")
	}
}

func TestOpenBreakerIsUpstreamError(t *testing.T) {
	a := &fakeProvider{name: "pa", fn: failWith(recommend.ErrUpstream)}
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5
	r := NewRunner(logger.Nop(), registry.NewRegistry(a), NewBreakers(logger.Nop(), nil, cfg), nil)
	c := config.ChainConfig{ID: "main", Nodes: []config.NodeConfig{node("A", "pa", time.Second)}, Terminal: fallback}

	for i := 0; i < 2; i++ {
		r.Execute(context.Background(), c, testRC, testReq, candidates)
	}
	out := r.Execute(context.Background(), c, testRC, testReq, candidates)
	if out.Reason != recommend.ErrUpstream {
		t.Fatalf("reason=%s", out.Reason)
	}
	if atomic.LoadInt32(&a.calls) != 2 {
		t.Fatalf("open breaker must short-circuit; calls=%d", a.calls)
	}
}
