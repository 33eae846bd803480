// Package orchestrator runs the recommendation pipeline for one request and guarantees a
// scheduler-backed answer whenever the scheduler itself is reachable.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/observability"
	"github.com/yungbote/neurobridge-recommender/internal/platform/apierr"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/cache"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/candidate"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/chain"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/prompt"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/rank"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/toggle"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/validate"
)

// Hop labels and meta values for paths that never reach a provider.
const (
	HopCache     = "cache"
	HopToggleOff = "toggle_off"
	HopScheduler = "scheduler"

	ChainDisabled = "disabled"

	StrategyFSRS     = "fsrs"
	StrategyFallback = "fallback"
	StrategyBusy     = "busy"
	StrategyEmpty    = "empty"

	ReasonNoCandidates = "NO_CANDIDATES"

	TerminalBusy     = "busy_message"
	TerminalEmpty    = "empty"
	TerminalFallback = "fallback"

	defaultBusyMessage = "Recommendations are busy right now. Please try again shortly."
)

// Deps are the collaborators of the pipeline. Cache and Metrics may be nil.
type Deps struct {
	Log        *logger.Logger
	Config     config.RecommendConfig
	Toggles    *toggle.Evaluator
	Candidates *candidate.Builder
	Enhancer   *candidate.Enhancer
	Profiles   recommend.ProfileService
	Prompts    *prompt.Assembler
	Selector   *chain.Selector
	Chain      *chain.Runner
	Ranker     *rank.Ranker
	Cache      *cache.Cache
	Metrics    *observability.Metrics
}

type Orchestrator struct {
	log        *logger.Logger
	buffer     time.Duration
	toggles    *toggle.Evaluator
	candidates *candidate.Builder
	enhancer   *candidate.Enhancer
	profiles   recommend.ProfileService
	prompts    *prompt.Assembler
	selector   *chain.Selector
	chain      *chain.Runner
	ranker     *rank.Ranker
	cache      *cache.Cache
	metrics    *observability.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		log:        d.Log.With("service", "RecommendationOrchestrator"),
		buffer:     d.Config.DeadlineBuffer.Duration,
		toggles:    d.Toggles,
		candidates: d.Candidates,
		enhancer:   d.Enhancer,
		profiles:   d.Profiles,
		prompts:    d.Prompts,
		selector:   d.Selector,
		chain:      d.Chain,
		ranker:     d.Ranker,
		cache:      d.Cache,
		metrics:    d.Metrics,
		tracer:     observability.Tracer("recommender/orchestrator"),
		now:        time.Now,
	}
}

// pipeline carries per-request state between stages.
type pipeline struct {
	rc       recommend.RequestContext
	sel      chain.Selection
	pool     []recommend.ProblemCandidate
	profile  recommend.ProfileSummary
	outcome  chain.Outcome
	fallback string
}

// Recommend returns a response for rc. The only error is an unreachable scheduler,
// reported as a 503 apierr.
func (o *Orchestrator) Recommend(ctx context.Context, rc recommend.RequestContext) (*recommend.Response, error) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "recommend.Recommend",
		trace.WithAttributes(
			attribute.String("rec.type", string(rc.Type)),
			attribute.String("rec.objective", string(rc.Objective)),
			attribute.String("rec.tier", rc.Tier),
			attribute.String("rec.ab_group", rc.ABGroup),
			attribute.Int("rec.limit", rc.Limit),
			attribute.Bool("rec.force_refresh", rc.ForceRefresh),
		),
	)
	defer span.End()
	log := o.log.With("trace_id", rc.TraceID, "user_id", rc.UserID.String())

	resp, err := o.recommend(ctx, log, rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("recommendation failed", "error", err)
		return nil, err
	}

	resp.Meta.TraceID = rc.TraceID
	if resp.Meta.ChainHops == nil {
		resp.Meta.ChainHops = []string{}
	}
	if resp.Items == nil {
		resp.Items = []recommend.RecommendationItem{}
	}

	source := resp.Source()
	span.SetAttributes(
		attribute.String("rec.source", string(source)),
		attribute.String("rec.chain_id", resp.Meta.ChainID),
		attribute.String("rec.policy_id", resp.Meta.PolicyID),
		attribute.StringSlice("rec.chain_hops", resp.Meta.ChainHops),
		attribute.Bool("rec.cached", resp.Meta.Cached),
		attribute.Int("rec.items", len(resp.Items)),
	)
	if resp.Meta.FallbackReason != "" {
		span.SetAttributes(attribute.String("rec.fallback_reason", resp.Meta.FallbackReason))
		o.metrics.IncFallback(resp.Meta.FallbackReason)
	}
	span.SetStatus(codes.Ok, "")

	o.metrics.ObserveRecommendation(string(source), resp.Meta.ChainID, string(rc.Type), len(resp.Items), o.now().Sub(start))
	for _, it := range resp.Items {
		o.metrics.ObserveConfidence(string(it.Source), it.Confidence)
	}
	log.Info("recommendation served",
		"source", source,
		"chain_id", resp.Meta.ChainID,
		"hops", resp.Meta.ChainHops,
		"cached", resp.Meta.Cached,
		"items", len(resp.Items),
		"fallback_reason", resp.Meta.FallbackReason,
		"duration_ms", o.now().Sub(start).Milliseconds(),
	)
	return resp, nil
}

func (o *Orchestrator) recommend(ctx context.Context, log *logger.Logger, rc recommend.RequestContext) (*recommend.Response, error) {
	if d := o.toggles.Evaluate(rc); !d.Enabled {
		log.Debug("external ranking disabled", "reason", d.Reason)
		return o.toggleOff(ctx, rc)
	}
	if rc.Type == recommend.TypeFSRS {
		return o.schedulerOnly(ctx, rc)
	}

	sel := o.selector.Select(rc)
	key := cache.Key(rc, o.prompts.Version(), sel.Chain.ID)

	if !rc.ForceRefresh {
		if hit, ok := o.cache.Get(ctx, key); ok {
			hit.Meta.Cached = true
			hit.Meta.ChainHops = []string{HopCache}
			return hit, nil
		}
	}

	return o.cache.Collapse(key, func() (*recommend.Response, error) {
		p := &pipeline{rc: rc, sel: sel}
		resp, err := o.compute(ctx, log, p)
		if err != nil {
			return nil, err
		}
		if p.outcome.Status == chain.StatusDone && o.cache.ShouldCache(resp, p.outcome.DroppedRatio()) {
			o.cache.Put(ctx, key, resp, rc.UserID)
		} else if p.outcome.Status == chain.StatusDone && p.outcome.Dropped > 0 {
			log.Info("response not cached", "dropped", p.outcome.Dropped, "received", p.outcome.Received)
		}
		return resp, nil
	})
}

func (o *Orchestrator) compute(ctx context.Context, log *logger.Logger, p *pipeline) (*recommend.Response, error) {
	if err := o.gather(ctx, log, p); err != nil {
		return nil, err
	}
	if len(p.pool) == 0 {
		return o.fallbackResponse(p, ReasonNoCandidates, nil), nil
	}

	enhanced := o.enhancer.Enhance(p.rc, p.pool, p.profile)
	pr, err := o.prompts.Assemble(p.rc, enhanced, p.profile)
	if err != nil {
		log.Warn("prompt assembly failed", "error", err)
		return o.fallbackResponse(p, string(recommend.ErrConfig), nil), nil
	}

	ids := make([]int64, 0, len(enhanced))
	byID := make(map[int64]recommend.ProblemCandidate, len(enhanced))
	for _, c := range enhanced {
		ids = append(ids, c.ProblemID)
		byID[c.ProblemID] = c
	}
	req := provider.Request{
		Prompt:       pr,
		CandidateIDs: ids,
		Limit:        p.rc.Limit,
		UserID:       p.rc.UserID.String(),
		TraceID:      p.rc.TraceID,
	}

	guard := chain.GuardTimeout(p.sel.Chain, o.buffer)
	chainCtx, cancel := context.WithTimeout(ctx, guard)
	chainCtx, span := o.tracer.Start(chainCtx, "recommend.ProviderChain",
		trace.WithAttributes(
			attribute.String("chain.id", p.sel.Chain.ID),
			attribute.Int64("chain.guard_ms", guard.Milliseconds()),
			attribute.Int("chain.candidates", len(ids)),
		),
	)
	p.outcome = o.chain.Execute(chainCtx, p.sel.Chain, p.rc, req, validate.CandidateSet(enhanced))
	span.SetAttributes(
		attribute.String("chain.status", string(p.outcome.Status)),
		attribute.StringSlice("chain.hops", p.outcome.Hops),
		attribute.String("chain.final_provider", p.outcome.FinalProvider),
	)
	span.End()
	cancel()

	out := p.outcome
	switch out.Status {
	case chain.StatusDone:
		items := o.ranker.Rank(p.rc, out.Items, byID, p.profile, rank.Provenance{NodeIndex: out.NodeIndex})
		if len(items) == 0 {
			return o.fallbackResponse(p, string(recommend.ErrParsing), out.Hops), nil
		}
		resp := o.baseResponse(p)
		resp.Items = items
		resp.Meta.Strategy = string(p.rc.Type)
		resp.Meta.ChainHops = out.Hops
		resp.Meta.FinalProvider = out.FinalProvider
		resp.Meta.DroppedItems = out.Dropped
		return resp, nil

	case chain.StatusDeadline:
		return o.fallbackResponse(p, string(recommend.ErrDeadlineExceeded), out.Hops), nil

	default:
		return o.terminalResponse(p), nil
	}
}

// gather builds the candidate pool and fetches the profile concurrently. A profile
// failure degrades to an empty profile; a scheduler failure is fatal.
func (o *Orchestrator) gather(ctx context.Context, log *logger.Logger, p *pipeline) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool, err := o.candidates.Build(gctx, p.rc.UserID, p.rc.Limit)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	})
	g.Go(func() error {
		if o.profiles == nil {
			return nil
		}
		prof, err := o.profiles.ProfileSummary(gctx, p.rc.UserID)
		if err != nil {
			log.Warn("profile summary unavailable; continuing without personalization", "error", err)
			return nil
		}
		p.profile = prof
		return nil
	})
	if err := g.Wait(); err != nil {
		return schedulerUnavailable(err)
	}
	p.profile.DataQuality = o.ranker.DataQuality(p.profile)
	return nil
}

func (o *Orchestrator) toggleOff(ctx context.Context, rc recommend.RequestContext) (*recommend.Response, error) {
	pool, err := o.candidates.Build(ctx, rc.UserID, rc.Limit)
	if err != nil {
		return nil, schedulerUnavailable(err)
	}
	resp := &recommend.Response{
		Items: candidate.FallbackItems(pool, rc.Limit),
		Meta: recommend.Meta{
			GeneratedAt:        o.now().UTC(),
			ChainID:            ChainDisabled,
			PromptVersion:      o.prompts.Version(),
			Strategy:           StrategyFallback,
			FallbackReason:     string(recommend.ErrToggleOff),
			ChainHops:          []string{HopToggleOff},
			RecommendationType: string(rc.Type),
		},
	}
	return resp, nil
}

func (o *Orchestrator) schedulerOnly(ctx context.Context, rc recommend.RequestContext) (*recommend.Response, error) {
	pool, err := o.candidates.Build(ctx, rc.UserID, rc.Limit)
	if err != nil {
		return nil, schedulerUnavailable(err)
	}
	return &recommend.Response{
		Items: candidate.FallbackItems(pool, rc.Limit),
		Meta: recommend.Meta{
			GeneratedAt:        o.now().UTC(),
			PromptVersion:      o.prompts.Version(),
			Strategy:           StrategyFSRS,
			ChainHops:          []string{HopScheduler},
			RecommendationType: string(rc.Type),
		},
	}, nil
}

func (o *Orchestrator) baseResponse(p *pipeline) *recommend.Response {
	return &recommend.Response{
		Meta: recommend.Meta{
			GeneratedAt:        o.now().UTC(),
			ChainID:            p.sel.Chain.ID,
			ChainVersion:       p.sel.Chain.Version,
			PolicyID:           p.sel.PolicyID,
			PromptVersion:      o.prompts.Version(),
			RecommendationType: string(p.rc.Type),
			UserProfileSummary: prompt.Summary(p.profile),
		},
	}
}

func (o *Orchestrator) fallbackResponse(p *pipeline, reason string, hops []string) *recommend.Response {
	resp := o.baseResponse(p)
	resp.Items = candidate.FallbackItems(p.pool, p.rc.Limit)
	resp.Meta.Strategy = StrategyFallback
	resp.Meta.FallbackReason = reason
	resp.Meta.ChainHops = append(append([]string(nil), hops...), HopScheduler)
	return resp
}

func (o *Orchestrator) terminalResponse(p *pipeline) *recommend.Response {
	out := p.outcome
	reason := string(out.Reason)
	switch out.Terminal.Strategy {
	case TerminalBusy:
		resp := o.baseResponse(p)
		resp.Meta.Strategy = StrategyBusy
		resp.Meta.Busy = true
		resp.Meta.Message = out.Terminal.Message
		if resp.Meta.Message == "" {
			resp.Meta.Message = defaultBusyMessage
		}
		resp.Meta.TerminalStatus = out.Terminal.StatusCode
		if resp.Meta.TerminalStatus == 0 {
			resp.Meta.TerminalStatus = http.StatusServiceUnavailable
		}
		resp.Meta.FallbackReason = reason
		resp.Meta.ChainHops = out.Hops
		return resp
	case TerminalEmpty:
		resp := o.baseResponse(p)
		resp.Meta.Strategy = StrategyEmpty
		resp.Meta.FallbackReason = reason
		resp.Meta.ChainHops = out.Hops
		return resp
	default:
		return o.fallbackResponse(p, reason, out.Hops)
	}
}

func schedulerUnavailable(err error) error {
	return apierr.New(http.StatusServiceUnavailable, "scheduler_unavailable", fmt.Errorf("scheduler: %w", err))
}
