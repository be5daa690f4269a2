package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Ebay       EbayConfig       `yaml:"ebay" mapstructure:"ebay"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Consensus  ConsensusConfig  `yaml:"consensus" mapstructure:"consensus"`
	Category   CategoryConfig   `yaml:"category" mapstructure:"category"`
	Reference  ReferenceConfig  `yaml:"reference" mapstructure:"reference"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Benchmark  BenchmarkConfig  `yaml:"benchmark" mapstructure:"benchmark"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for vision/text/arbiter calls.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	VisionModel    string  `yaml:"vision_model" mapstructure:"vision_model"`
	TextModel      string  `yaml:"text_model" mapstructure:"text_model"`
	ArbiterModel   string  `yaml:"arbiter_model" mapstructure:"arbiter_model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// OpenRouterConfig holds settings for the OpenRouter chat-completions gateway.
type OpenRouterConfig struct {
	Key     string   `yaml:"key" mapstructure:"key"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Models  []string `yaml:"models" mapstructure:"models"`
}

// EbayConfig holds marketplace search API settings.
type EbayConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// ProvidersConfig holds per-provider trust weights and call behavior.
type ProvidersConfig struct {
	// Weights maps provider id to its base reliability weight. Providers
	// absent from the map get DefaultWeight.
	Weights       map[string]float64 `yaml:"weights" mapstructure:"weights"`
	DefaultWeight float64            `yaml:"default_weight" mapstructure:"default_weight"`
	// ScaleByConfidence multiplies the base weight by the provider's own
	// reported confidence when tallying.
	ScaleByConfidence bool `yaml:"scale_by_confidence" mapstructure:"scale_by_confidence"`
	// Tiebreaker names the provider used for arbitration calls.
	Tiebreaker string `yaml:"tiebreaker" mapstructure:"tiebreaker"`
	// CallTimeoutSecs bounds each individual provider call.
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// ConsensusConfig holds the tunable constants of the consensus engine.
type ConsensusConfig struct {
	CloseVoteThreshold       float64 `yaml:"close_vote_threshold" mapstructure:"close_vote_threshold"`
	TargetAICount            int     `yaml:"target_ai_count" mapstructure:"target_ai_count"`
	MinVotesForFullConsensus int     `yaml:"min_votes_for_full_consensus" mapstructure:"min_votes_for_full_consensus"`
	LowVoteCap               int     `yaml:"low_vote_cap" mapstructure:"low_vote_cap"`
	MinVotesForTiebreaker    int     `yaml:"min_votes_for_tiebreaker" mapstructure:"min_votes_for_tiebreaker"`
	AuthorityBonus           int     `yaml:"authority_bonus" mapstructure:"authority_bonus"`
	BlendDecisionAgreement   float64 `yaml:"blend_decision_agreement" mapstructure:"blend_decision_agreement"`
	BlendValueAgreement      float64 `yaml:"blend_value_agreement" mapstructure:"blend_value_agreement"`
	BlendAvgAIConfidence     float64 `yaml:"blend_avg_ai_confidence" mapstructure:"blend_avg_ai_confidence"`
	BlendParticipation       float64 `yaml:"blend_participation" mapstructure:"blend_participation"`
}

// CategoryConfig configures category detection.
type CategoryConfig struct {
	// TablePath optionally points at a YAML file overriding the embedded
	// keyword and name-override tables.
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// ReferenceConfig configures reference-data source lookups.
type ReferenceConfig struct {
	CacheTTLMins      int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	LookupTimeoutSecs int `yaml:"lookup_timeout_secs" mapstructure:"lookup_timeout_secs"`
	MaxCascadeLength  int `yaml:"max_cascade_length" mapstructure:"max_cascade_length"`
}

// AnalysisConfig configures the live analysis pipeline.
type AnalysisConfig struct {
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// BenchmarkConfig configures the asynchronous benchmark scorer.
type BenchmarkConfig struct {
	QueueSize  int `yaml:"queue_size" mapstructure:"queue_size"`
	Workers    int `yaml:"workers" mapstructure:"workers"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	DLQDepthThreshold     int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APPRAISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "appraisal.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.text_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.arbiter_model", "claude-opus-4-6")
	v.SetDefault("anthropic.requests_per_sec", 5.0)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.models", []string{"google/gemini-2.5-flash", "openai/gpt-5-mini"})
	v.SetDefault("ebay.base_url", "https://api.ebay.com/buy/browse/v1")
	v.SetDefault("ebay.max_results", 25)
	v.SetDefault("providers.default_weight", 1.0)
	v.SetDefault("providers.scale_by_confidence", true)
	v.SetDefault("providers.tiebreaker", "claude-arbiter")
	v.SetDefault("providers.call_timeout_secs", 30)
	v.SetDefault("consensus.close_vote_threshold", 0.15)
	v.SetDefault("consensus.target_ai_count", 10)
	v.SetDefault("consensus.min_votes_for_full_consensus", 3)
	v.SetDefault("consensus.low_vote_cap", 75)
	v.SetDefault("consensus.min_votes_for_tiebreaker", 4)
	v.SetDefault("consensus.authority_bonus", 10)
	v.SetDefault("consensus.blend_decision_agreement", 0.35)
	v.SetDefault("consensus.blend_value_agreement", 0.25)
	v.SetDefault("consensus.blend_avg_ai_confidence", 0.25)
	v.SetDefault("consensus.blend_participation", 0.15)
	v.SetDefault("reference.cache_ttl_mins", 60)
	v.SetDefault("reference.lookup_timeout_secs", 10)
	v.SetDefault("reference.max_cascade_length", 3)
	v.SetDefault("analysis.stage_timeout_secs", 45)
	v.SetDefault("analysis.max_concurrent", 8)
	v.SetDefault("benchmark.queue_size", 256)
	v.SetDefault("benchmark.workers", 2)
	v.SetDefault("benchmark.max_retries", 3)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.5)
	v.SetDefault("monitoring.dlq_depth_threshold", 50)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
