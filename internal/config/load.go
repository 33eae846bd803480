package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int milliseconds: %w", err)
	}
	d.Duration = time.Duration(n) * time.Millisecond
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n) * time.Millisecond
		return nil
	}
	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func boolPtr(v bool) *bool { return &v }

// Default is the built-in configuration before any file or environment is applied.
func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			AutoMigrate: true,
		},
		Observability: ObservabilityConfig{
			ServiceName: "neurobridge-recommender",
		},
		Recommend: RecommendConfig{
			DefaultChainID: "main",
			PromptVersion:  "v2",
			DeadlineBuffer: Duration{Duration: 300 * time.Millisecond},
			Providers: []ProviderConfig{
				{ID: "mock", Type: "mock"},
			},
			Chains: []ChainConfig{
				{
					ID:      "main",
					Version: "v1",
					Nodes: []NodeConfig{
						{
							Name:       "primary",
							Provider:   "mock",
							Enabled:    boolPtr(true),
							Timeout:    Duration{Duration: 1800 * time.Millisecond},
							Retry:      RetryConfig{Attempts: 0, Backoff: Duration{Duration: 100 * time.Millisecond}},
							RateLimit:  RateLimitConfig{RPS: 5, Burst: 10, PerUserRPS: 1, PerUserBurst: 2},
							EscalateOn: []string{"TIMEOUT", "RATE_LIMITED", "UPSTREAM_ERROR", "PARSING_ERROR"},
						},
					},
					Terminal: TerminalConfig{
						Strategy:   "fallback",
						Message:    "AI recommendations are busy right now. Showing your review queue instead.",
						StatusCode: 503,
					},
				},
			},
			Toggles: ToggleConfig{
				Enabled:       true,
				AllowListMode: "override",
			},
			Async: AsyncConfig{
				Enabled:    true,
				DailyLimit: 1,
			},
			Cache: CacheConfig{
				TTL:             Duration{Duration: time.Hour},
				MaxEntries:      10000,
				MaxDroppedRatio: 0.5,
				CollapseMisses:  true,
			},
			Ranking:    defaultRanking(),
			TagDomains: defaultTagDomains(),
		},
	}
}

func defaultRanking() RankingConfig {
	return RankingConfig{
		Weights: HybridWeights{External: 0.45, Urgency: 0.30, Similarity: 0.15, Personalization: 0.10},
		Calibration: CalibrationConfig{
			External:          0.40,
			Personalization:   0.25,
			Urgency:           0.20,
			Similarity:        0.15,
			NonPrimaryPenalty: 0.10,
			TerminalPenalty:   0.20,
		},
		DataQuality: DataQualityConfig{
			SampleTarget:  50,
			SampleWeight:  0.7,
			RecencyWeight: 0.3,
			RecencyWindow: Duration{Duration: 14 * 24 * time.Hour},
		},
	}
}

func defaultTagDomains() map[string]string {
	return map[string]string{
		"array":               "arrays",
		"linked-list":         "linked_lists",
		"hash-table":          "hash_tables",
		"string":              "strings",
		"two-pointers":        "two_pointers",
		"sliding-window":      "sliding_window",
		"binary-search":       "binary_search",
		"sorting":             "sorting",
		"backtracking":        "backtracking",
		"divide-and-conquer":  "divide_conquer",
		"greedy":              "greedy",
		"dynamic-programming": "dynamic_programming",
		"graph":               "graphs",
		"tree":                "trees",
		"binary-tree":         "binary_trees",
		"heap":                "heaps",
		"priority-queue":      "heaps",
		"stack":               "stacks_queues",
		"queue":               "stacks_queues",
		"bit-manipulation":    "bit_manipulation",
		"math":                "math",
		"prefix-sum":          "prefix_sum",
		"union-find":          "union_find",
		"monotonic-stack":     "monotonic_stack",
		"trie":                "tries",
		"geometry":            "geometry",
		"matrix":              "matrices",
		"design":              "system_design",
		"simulation":          "simulation",
	}
}

// Load reads RECS_CONFIG_PATH (YAML or JSON by extension), falling back to
// config/config.yaml or config/config.json in the working directory, then applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	cfgPath := strings.TrimSpace(os.Getenv("RECS_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
				p := filepath.Join(wd, "config", name)
				if _, err := os.Stat(p); err == nil {
					cfgPath = p
					break
				}
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := Decode(cfgPath, b, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals raw config bytes onto cfg, choosing the format by file extension.
// Declared lists (providers, chains, policies) replace the defaults instead of merging into them.
func Decode(path string, raw []byte, cfg *Config) error {
	prev := cfg.Recommend
	cfg.Recommend.Providers = nil
	cfg.Recommend.Chains = nil
	cfg.Recommend.Policies = nil

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, cfg)
	default:
		err = yaml.Unmarshal(raw, cfg)
	}
	if err != nil {
		return err
	}
	if len(cfg.Recommend.Providers) == 0 {
		cfg.Recommend.Providers = prev.Providers
	}
	if len(cfg.Recommend.Chains) == 0 {
		cfg.Recommend.Chains = prev.Chains
	}
	if cfg.Recommend.Policies == nil {
		cfg.Recommend.Policies = prev.Policies
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOG_MODE")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("RECS_HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_DRIVER")); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET_KEY")); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_ENABLED")); v != "" {
		cfg.Observability.MetricsEnabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("RECS_PROMPT_VERSION")); v != "" {
		cfg.Recommend.PromptVersion = v
	}
	if v := strings.TrimSpace(os.Getenv("RECS_DEFAULT_CHAIN")); v != "" {
		cfg.Recommend.DefaultChainID = v
	}
	if v := strings.TrimSpace(os.Getenv("RECS_AI_ENABLED")); v != "" {
		cfg.Recommend.Toggles.Enabled = parseBool(v)
	}
}

// Normalize fills defaults and validates the recommendation topology. It is exported
// so tests and tools can validate configs built in code.
func Normalize(cfg *Config) error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "", "postgres", "postgresql":
		cfg.Database.Driver = "postgres"
	case "sqlite", "sqlite3":
		cfg.Database.Driver = "sqlite"
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	rc := &cfg.Recommend
	if rc.DeadlineBuffer.Duration <= 0 {
		rc.DeadlineBuffer = Duration{Duration: 300 * time.Millisecond}
	}
	rc.PromptVersion = strings.ToLower(strings.TrimSpace(rc.PromptVersion))
	if rc.Cache.TTL.Duration <= 0 {
		rc.Cache.TTL = Duration{Duration: time.Hour}
	}
	if rc.Cache.MaxEntries <= 0 {
		rc.Cache.MaxEntries = 10000
	}
	if rc.Cache.MaxDroppedRatio < 0 || rc.Cache.MaxDroppedRatio > 1 {
		return fmt.Errorf("recommend.cache.max_dropped_ratio must be within [0,1]")
	}
	if rc.Async.DailyLimit < 0 {
		return errors.New("recommend.async.daily_limit must not be negative")
	}
	if rc.Async.TaskTTL.Duration <= 0 {
		rc.Async.TaskTTL = Duration{Duration: 2 * time.Hour}
	}
	if rc.Async.ResultTTL.Duration <= 0 {
		rc.Async.ResultTTL = Duration{Duration: 24 * time.Hour}
	}
	if rc.Async.Workers <= 0 {
		rc.Async.Workers = 4
	}
	if rc.Async.QueueSize <= 0 {
		rc.Async.QueueSize = 64
	}
	if rc.Async.Timeout.Duration <= 0 {
		rc.Async.Timeout = Duration{Duration: 30 * time.Second}
	}
	if rc.Analytics.ProfileTTL.Duration <= 0 {
		rc.Analytics.ProfileTTL = Duration{Duration: 10 * time.Minute}
	}

	providers := map[string]bool{}
	for i := range rc.Providers {
		p := &rc.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.ID == "" {
			return errors.New("provider id is required")
		}
		if providers[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		providers[p.ID] = true
		switch p.Type {
		case "mock":
		case "openai_http", "oai_http":
			p.Type = "oai_http"
			p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
			if p.BaseURL == "" {
				return fmt.Errorf("provider %q (oai_http) missing base_url", p.ID)
			}
			if strings.TrimSpace(p.ChatCompletionsPath) == "" {
				p.ChatCompletionsPath = "/chat/completions"
			}
			if strings.TrimSpace(p.Model) == "" {
				p.Model = "gpt-4o-mini"
			}
			p.JSONMode = strings.ToLower(strings.TrimSpace(p.JSONMode))
			switch p.JSONMode {
			case "", "json_object":
				p.JSONMode = "json_object"
			case "none", "prompt":
			default:
				return fmt.Errorf("provider %q invalid json_mode=%q", p.ID, p.JSONMode)
			}
		default:
			return fmt.Errorf("unsupported provider type %q for provider %q", p.Type, p.ID)
		}
	}

	if len(rc.Chains) == 0 {
		return errors.New("recommend config must define at least one chain")
	}
	chains := map[string]bool{}
	for i := range rc.Chains {
		ch := &rc.Chains[i]
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			return errors.New("chain id is required")
		}
		if chains[ch.ID] {
			return fmt.Errorf("duplicate chain id: %s", ch.ID)
		}
		chains[ch.ID] = true
		if ch.Version == "" {
			ch.Version = "v1"
		}
		ch.Terminal.Strategy = strings.ToLower(strings.TrimSpace(ch.Terminal.Strategy))
		switch ch.Terminal.Strategy {
		case "":
			ch.Terminal.Strategy = "fallback"
		case "fsrs_fallback":
			ch.Terminal.Strategy = "fallback"
		case "busy_message", "fallback", "empty":
		default:
			return fmt.Errorf("chain %q invalid terminal.strategy=%q", ch.ID, ch.Terminal.Strategy)
		}
		if ch.Terminal.StatusCode == 0 {
			ch.Terminal.StatusCode = 503
		}
		for j := range ch.Nodes {
			n := &ch.Nodes[j]
			n.Name = strings.TrimSpace(n.Name)
			n.Provider = strings.TrimSpace(n.Provider)
			if n.Name == "" {
				n.Name = n.Provider
			}
			if !providers[n.Provider] {
				return fmt.Errorf("chain %q node %q references unknown provider %q", ch.ID, n.Name, n.Provider)
			}
			if n.Enabled == nil {
				n.Enabled = boolPtr(true)
			}
			if n.Timeout.Duration <= 0 {
				n.Timeout = Duration{Duration: 1800 * time.Millisecond}
			}
			if n.Retry.Attempts < 0 {
				return fmt.Errorf("chain %q node %q invalid retry.attempts", ch.ID, n.Name)
			}
			if n.Retry.Backoff.Duration <= 0 {
				n.Retry.Backoff = Duration{Duration: 100 * time.Millisecond}
			}
			if n.RateLimit.RPS <= 0 {
				n.RateLimit.RPS = 5
			}
			if n.RateLimit.Burst <= 0 {
				n.RateLimit.Burst = int(math.Ceil(n.RateLimit.RPS * 2))
			}
			if n.RateLimit.PerUserRPS <= 0 {
				n.RateLimit.PerUserRPS = 1
			}
			if n.RateLimit.PerUserBurst <= 0 {
				n.RateLimit.PerUserBurst = int(math.Ceil(n.RateLimit.PerUserRPS * 2))
			}
			for k, c := range n.EscalateOn {
				n.EscalateOn[k] = strings.ToUpper(strings.TrimSpace(c))
			}
		}
	}
	if strings.TrimSpace(rc.DefaultChainID) == "" {
		rc.DefaultChainID = rc.Chains[0].ID
	}

	policies := map[string]bool{}
	for i := range rc.Policies {
		p := &rc.Policies[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = fmt.Sprintf("policy-%d", i+1)
		}
		if policies[p.ID] {
			return fmt.Errorf("duplicate policy id: %s", p.ID)
		}
		policies[p.ID] = true
		if p.ChainID == "" && len(p.Weighted) == 0 {
			return fmt.Errorf("policy %q must set chain_id or weighted", p.ID)
		}
		for _, w := range p.Weighted {
			if w.Weight <= 0 {
				return fmt.Errorf("policy %q weighted chain %q must have a positive weight", p.ID, w.ChainID)
			}
		}
		p.Stickiness.Key = strings.ToLower(strings.TrimSpace(p.Stickiness.Key))
		if p.Stickiness.Key == "" {
			p.Stickiness.Key = "user_id"
		}
	}

	tg := &rc.Toggles
	tg.AllowListMode = strings.ToLower(strings.TrimSpace(tg.AllowListMode))
	switch tg.AllowListMode {
	case "":
		tg.AllowListMode = "override"
	case "override", "whitelist":
	default:
		return fmt.Errorf("invalid toggles.allow_list_mode=%q", tg.AllowListMode)
	}

	if err := normalizeRanking(&rc.Ranking); err != nil {
		return err
	}

	normalized := make(map[string]string, len(rc.TagDomains))
	for tag, domain := range rc.TagDomains {
		t := strings.ToLower(strings.TrimSpace(tag))
		d := strings.ToLower(strings.TrimSpace(domain))
		if t == "" || d == "" {
			continue
		}
		normalized[t] = d
	}
	rc.TagDomains = normalized
	return nil
}

func normalizeRanking(r *RankingConfig) error {
	def := defaultRanking()
	w := r.Weights
	if w == (HybridWeights{}) {
		r.Weights = def.Weights
	} else if sum := w.External + w.Urgency + w.Similarity + w.Personalization; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("recommend.ranking.weights must sum to 1 (got %.4f)", sum)
	}
	if r.Calibration == (CalibrationConfig{}) {
		r.Calibration = def.Calibration
	}
	if r.DataQuality.SampleTarget <= 0 {
		r.DataQuality.SampleTarget = def.DataQuality.SampleTarget
	}
	if r.DataQuality.SampleWeight == 0 && r.DataQuality.RecencyWeight == 0 {
		r.DataQuality.SampleWeight = def.DataQuality.SampleWeight
		r.DataQuality.RecencyWeight = def.DataQuality.RecencyWeight
	}
	if r.DataQuality.RecencyWindow.Duration <= 0 {
		r.DataQuality.RecencyWindow = def.DataQuality.RecencyWindow
	}
	for objective, mix := range r.Mixing {
		var sum float64
		for _, share := range mix {
			if share < 0 {
				return fmt.Errorf("recommend.ranking.mixing[%s] has a negative share", objective)
			}
			sum += share
		}
		if sum <= 0 {
			return fmt.Errorf("recommend.ranking.mixing[%s] shares must be positive", objective)
		}
	}
	return nil
}

// ChainIDs lists declared chains in declaration order.
func (rc *RecommendConfig) ChainIDs() []string {
	out := make([]string, 0, len(rc.Chains))
	for _, c := range rc.Chains {
		out = append(out, c.ID)
	}
	return out
}

// SortedDomains returns the distinct domain names known to the tag mapping.
func (rc *RecommendConfig) SortedDomains() []string {
	seen := map[string]bool{}
	for _, d := range rc.TagDomains {
		seen[d] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}
