package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes"`
	CORSOrigins       []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	Issuer    string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string `json:"driver" yaml:"driver"`
	DSN         string `json:"dsn" yaml:"dsn"`
	AutoMigrate bool   `json:"auto_migrate" yaml:"auto_migrate"`
}

type RedisConfig struct {
	// Addr empty means the in-process cache is used.
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

type ObservabilityConfig struct {
	ServiceName    string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Version        string `json:"version,omitempty" yaml:"version,omitempty"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// ProviderConfig declares one external ranking backend that chain nodes can reference.
type ProviderConfig struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`

	BaseURL             string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	ChatCompletionsPath string   `json:"chat_completions_path,omitempty" yaml:"chat_completions_path,omitempty"`
	Model               string   `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey              string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv           string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	JSONMode            string   `json:"json_mode,omitempty" yaml:"json_mode,omitempty"`

	// Mock knobs, used by the "mock" type only.
	MockLatency Duration `json:"mock_latency,omitempty" yaml:"mock_latency,omitempty"`
	MockFailure string   `json:"mock_failure,omitempty" yaml:"mock_failure,omitempty"`
}

type RetryConfig struct {
	Attempts int      `json:"attempts" yaml:"attempts"`
	Backoff  Duration `json:"backoff" yaml:"backoff"`
}

type RateLimitConfig struct {
	RPS          float64 `json:"rps" yaml:"rps"`
	Burst        int     `json:"burst" yaml:"burst"`
	PerUserRPS   float64 `json:"per_user_rps" yaml:"per_user_rps"`
	PerUserBurst int     `json:"per_user_burst" yaml:"per_user_burst"`
}

type MatchConfig struct {
	Tiers    []string `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	ABGroups []string `json:"ab_groups,omitempty" yaml:"ab_groups,omitempty"`
	Routes   []string `json:"routes,omitempty" yaml:"routes,omitempty"`
}

type NodeConfig struct {
	Name       string          `json:"name" yaml:"name"`
	Provider   string          `json:"provider" yaml:"provider"`
	Enabled    *bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Timeout    Duration        `json:"timeout" yaml:"timeout"`
	Retry      RetryConfig     `json:"retry" yaml:"retry"`
	RateLimit  RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	EscalateOn []string        `json:"escalate_on,omitempty" yaml:"escalate_on,omitempty"`
	Conditions MatchConfig     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type TerminalConfig struct {
	// Strategy is busy_message, fallback or empty.
	Strategy   string `json:"strategy" yaml:"strategy"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
}

type ChainConfig struct {
	ID       string         `json:"id" yaml:"id"`
	Version  string         `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes    []NodeConfig   `json:"nodes" yaml:"nodes"`
	Terminal TerminalConfig `json:"terminal" yaml:"terminal"`
}

type WeightedChain struct {
	ChainID string `json:"chain_id" yaml:"chain_id"`
	Weight  int    `json:"weight" yaml:"weight"`
}

type StickinessConfig struct {
	// Key is "user_id" (default) or "trace_id".
	Key string   `json:"key,omitempty" yaml:"key,omitempty"`
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

type PolicyConfig struct {
	ID         string           `json:"id" yaml:"id"`
	Priority   int              `json:"priority" yaml:"priority"`
	Match      MatchConfig      `json:"match" yaml:"match"`
	ChainID    string           `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
	Weighted   []WeightedChain  `json:"weighted,omitempty" yaml:"weighted,omitempty"`
	Stickiness StickinessConfig `json:"stickiness,omitempty" yaml:"stickiness,omitempty"`
}

type ToggleConfig struct {
	Enabled       bool            `json:"enabled" yaml:"enabled"`
	ByTier        map[string]bool `json:"by_tier,omitempty" yaml:"by_tier,omitempty"`
	ByABGroup     map[string]bool `json:"by_ab_group,omitempty" yaml:"by_ab_group,omitempty"`
	ByRoute       map[string]bool `json:"by_route,omitempty" yaml:"by_route,omitempty"`
	AllowUsers    []string        `json:"allow_users,omitempty" yaml:"allow_users,omitempty"`
	DenyUsers     []string        `json:"deny_users,omitempty" yaml:"deny_users,omitempty"`
	AllowListMode string          `json:"allow_list_mode,omitempty" yaml:"allow_list_mode,omitempty"`
}

type CacheConfig struct {
	TTL             Duration `json:"ttl" yaml:"ttl"`
	MaxEntries      int      `json:"max_entries" yaml:"max_entries"`
	MaxDroppedRatio float64  `json:"max_dropped_ratio" yaml:"max_dropped_ratio"`
	CollapseMisses  bool     `json:"collapse_misses" yaml:"collapse_misses"`
}

// AsyncConfig bounds background recommendation tasks and the per-user daily quota.
// A DailyLimit of zero disables the quota.
type AsyncConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	DailyLimit int      `json:"daily_limit" yaml:"daily_limit"`
	TaskTTL    Duration `json:"task_ttl" yaml:"task_ttl"`
	ResultTTL  Duration `json:"result_ttl" yaml:"result_ttl"`
	Workers    int      `json:"workers" yaml:"workers"`
	QueueSize  int      `json:"queue_size" yaml:"queue_size"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
}

type AnalyticsConfig struct {
	ProfileTTL Duration `json:"profile_ttl" yaml:"profile_ttl"`
}

type HybridWeights struct {
	External        float64 `json:"external" yaml:"external"`
	Urgency         float64 `json:"urgency" yaml:"urgency"`
	Similarity      float64 `json:"similarity" yaml:"similarity"`
	Personalization float64 `json:"personalization" yaml:"personalization"`
}

type CalibrationConfig struct {
	External          float64 `json:"external" yaml:"external"`
	Personalization   float64 `json:"personalization" yaml:"personalization"`
	Urgency           float64 `json:"urgency" yaml:"urgency"`
	Similarity        float64 `json:"similarity" yaml:"similarity"`
	NonPrimaryPenalty float64 `json:"non_primary_penalty" yaml:"non_primary_penalty"`
	TerminalPenalty   float64 `json:"terminal_penalty" yaml:"terminal_penalty"`
}

type DataQualityConfig struct {
	SampleTarget  int      `json:"sample_target" yaml:"sample_target"`
	SampleWeight  float64  `json:"sample_weight" yaml:"sample_weight"`
	RecencyWeight float64  `json:"recency_weight" yaml:"recency_weight"`
	RecencyWindow Duration `json:"recency_window" yaml:"recency_window"`
}

type RankingConfig struct {
	Weights     HybridWeights     `json:"weights" yaml:"weights"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
	DataQuality DataQualityConfig `json:"data_quality" yaml:"data_quality"`

	// Mixing maps an objective (or "default") to strategy shares.
	Mixing map[string]map[string]float64 `json:"mixing,omitempty" yaml:"mixing,omitempty"`
}

type RecommendConfig struct {
	DefaultChainID string            `json:"default_chain_id" yaml:"default_chain_id"`
	PromptVersion  string            `json:"prompt_version" yaml:"prompt_version"`
	DeadlineBuffer Duration          `json:"deadline_buffer" yaml:"deadline_buffer"`
	Providers      []ProviderConfig  `json:"providers" yaml:"providers"`
	Chains         []ChainConfig     `json:"chains" yaml:"chains"`
	Policies       []PolicyConfig    `json:"policies,omitempty" yaml:"policies,omitempty"`
	Toggles        ToggleConfig      `json:"toggles" yaml:"toggles"`
	Cache          CacheConfig       `json:"cache" yaml:"cache"`
	Ranking        RankingConfig     `json:"ranking" yaml:"ranking"`
	Async          AsyncConfig       `json:"async" yaml:"async"`
	Analytics      AnalyticsConfig   `json:"analytics" yaml:"analytics"`
	TagDomains     map[string]string `json:"tag_domains,omitempty" yaml:"tag_domains,omitempty"`
}

type Config struct {
	Env           string              `json:"env" yaml:"env"`
	HTTP          HTTPConfig          `json:"http" yaml:"http"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Recommend     RecommendConfig     `json:"recommend" yaml:"recommend"`
}

// IsDev reports whether privileged debug behaviour (force refresh for everyone) is allowed.
func (c *Config) IsDev() bool {
	switch c.Env {
	case "development", "dev", "test":
		return true
	default:
		return false
	}
}
