package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/analysis"
	"github.com/flipscout/appraisal-cli/internal/benchmark"
	"github.com/flipscout/appraisal-cli/internal/category"
	"github.com/flipscout/appraisal-cli/internal/consensus"
	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/provider"
	"github.com/flipscout/appraisal-cli/internal/reference"
	"github.com/flipscout/appraisal-cli/internal/resilience"
	"github.com/flipscout/appraisal-cli/internal/store"
	anthropicpkg "github.com/flipscout/appraisal-cli/pkg/anthropic"
	"github.com/flipscout/appraisal-cli/pkg/ebay"
	"github.com/flipscout/appraisal-cli/pkg/openrouter"
)

// appraisalEnv holds the initialized store, provider registry, and pipeline
// shared by the analyze/serve/benchmark commands.
type appraisalEnv struct {
	Store     store.Store
	Providers *provider.Registry
	Detector  *category.Detector
	Router    *category.Router
	Engine    *consensus.Engine
	Pipeline  *analysis.Pipeline
	Worker    *benchmark.Worker
}

// Close releases resources held by the environment.
func (e *appraisalEnv) Close() {
	if e.Worker != nil {
		e.Worker.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "appraisal.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, provider clients, detection tables, and the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appraisalEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tables, err := loadTables()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	providers, arbiter := buildProviders()
	engine := consensus.NewEngine(consensusConfig())

	detector := category.NewDetector(tables)
	router := category.NewRouter(cfg.Reference.MaxCascadeLength)
	refExec := reference.NewExecutor(
		buildReferenceSources(),
		secs(cfg.Reference.LookupTimeoutSecs),
		mins(cfg.Reference.CacheTTLMins),
	)

	p := analysis.New(cfg, st, providers, detector, router, refExec, engine, arbiter)

	worker := benchmark.NewWorker(st, benchmark.Config{
		QueueSize:  cfg.Benchmark.QueueSize,
		Workers:    cfg.Benchmark.Workers,
		MaxRetries: cfg.Benchmark.MaxRetries,
	})

	return &appraisalEnv{
		Store:     st,
		Providers: providers,
		Detector:  detector,
		Router:    router,
		Engine:    engine,
		Pipeline:  p,
		Worker:    worker,
	}, nil
}

func loadTables() (*category.Tables, error) {
	if cfg.Category.TablePath == "" {
		return nil, nil
	}
	tables, err := category.LoadTables(cfg.Category.TablePath)
	if err != nil {
		return nil, eris.Wrap(err, "load category tables")
	}
	zap.L().Info("category tables loaded", zap.String("path", cfg.Category.TablePath))
	return tables, nil
}

// buildProviders registers every configured voting provider and returns the
// registry plus the arbiter used for tiebreaking (nil when unconfigured).
func buildProviders() (*provider.Registry, consensus.Arbiter) {
	reg := provider.NewRegistry()
	var arbiter consensus.Arbiter

	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		rps := cfg.Anthropic.RequestsPerSec
		reg.Register(guard(provider.NewClaudeVision(client, cfg.Anthropic.VisionModel), rps))
		reg.Register(guard(provider.NewClaudeText(client, cfg.Anthropic.TextModel), rps))
		if cfg.Providers.Tiebreaker == "claude-arbiter" {
			arbiter = provider.NewClaudeArbiter(client, cfg.Anthropic.ArbiterModel)
		}
	} else {
		zap.L().Warn("APPRAISE_ANTHROPIC_KEY not set, claude providers disabled")
	}

	if cfg.OpenRouter.Key != "" {
		client := openrouter.NewClient(cfg.OpenRouter.Key, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
		for _, modelID := range cfg.OpenRouter.Models {
			name := "openrouter-" + slugify(modelID)
			reg.Register(guard(provider.NewOpenRouter(client, name, modelID, []model.VoteStage{model.StageText}), 0))
		}
	}

	if cfg.Ebay.Key != "" {
		client := ebay.NewClient(cfg.Ebay.Key, ebay.WithBaseURL(cfg.Ebay.BaseURL))
		reg.Register(guard(provider.NewMarketSearch(client, cfg.Ebay.MaxResults), 0))
	}

	zap.L().Info("providers registered",
		zap.Strings("providers", reg.List()),
		zap.Bool("arbiter", arbiter != nil),
	)
	return reg, arbiter
}

func buildReferenceSources() *reference.Registry {
	reg := reference.NewRegistry()
	if cfg.Ebay.Key != "" {
		client := ebay.NewClient(cfg.Ebay.Key, ebay.WithBaseURL(cfg.Ebay.BaseURL))
		reg.Register(reference.NewEbaySoldSource(client, cfg.Ebay.MaxResults))
	}
	return reg
}

func consensusConfig() consensus.Config {
	return consensus.Config{
		Weights:                  cfg.Providers.Weights,
		DefaultWeight:            cfg.Providers.DefaultWeight,
		ScaleByConfidence:        cfg.Providers.ScaleByConfidence,
		CloseVoteThreshold:       cfg.Consensus.CloseVoteThreshold,
		TargetAICount:            cfg.Consensus.TargetAICount,
		MinVotesForFullConsensus: cfg.Consensus.MinVotesForFullConsensus,
		LowVoteCap:               cfg.Consensus.LowVoteCap,
		MinVotesForTiebreaker:    cfg.Consensus.MinVotesForTiebreaker,
		AuthorityBonus:           cfg.Consensus.AuthorityBonus,
		BlendDecisionAgreement:   cfg.Consensus.BlendDecisionAgreement,
		BlendValueAgreement:      cfg.Consensus.BlendValueAgreement,
		BlendAvgAIConfidence:     cfg.Consensus.BlendAvgAIConfidence,
		BlendParticipation:       cfg.Consensus.BlendParticipation,
	}
}

// guard stacks the standard call protections on a provider: a circuit
// breaker over an optional rate limit.
func guard(p provider.Provider, rps float64) provider.Provider {
	return provider.WithBreaker(provider.RateLimited(p, rps, 1), resilience.DefaultCircuitBreakerConfig())
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
func mins(n int) time.Duration { return time.Duration(n) * time.Minute }

// slugify turns an upstream model id like "google/gemini-2.5-flash" into a
// provider-name-safe slug.
func slugify(modelID string) string {
	return strings.NewReplacer("/", "-", ":", "-", ".", "-").Replace(modelID)
}
