package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jonathan/job-agent/internal/approval"
	"github.com/jonathan/job-agent/internal/config"
	"github.com/jonathan/job-agent/internal/db"
	"github.com/jonathan/job-agent/internal/fetch"
	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/llm"
	"github.com/jonathan/job-agent/internal/matching"
	"github.com/jonathan/job-agent/internal/notify"
	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/scraping"
	"github.com/jonathan/job-agent/internal/submit"
	"github.com/jonathan/job-agent/internal/tailoring"
	"github.com/jonathan/job-agent/internal/workflow"
)

// loadConfig reads the optional config file, fills defaults and applies the environment.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg = cfg.MergeWithDefaults(config.Default())
	cfg.ApplyEnv()
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// stores holds the workflow and learning stores, backed by PostgreSQL when a
// database URL is configured and by process memory otherwise.
type stores struct {
	db        *db.DB
	workflows workflow.Store
	learning  learning.Store
}

func openStores(ctx context.Context, cfg config.Config, requireDB bool) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if requireDB {
			return nil, fmt.Errorf("DATABASE_URL is required: this command works on persisted workflows")
		}
		log.Printf("[STORE] no database configured, state is kept in memory and lost on exit")
		return &stores{workflows: workflow.NewMemoryStore(), learning: learning.NewMemoryStore()}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return &stores{db: database, workflows: database.Workflows(), learning: database.Learning()}, nil
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func newIssuer(cfg config.Config) (*approval.Issuer, error) {
	if err := cfg.Approval.Normalize(); err != nil {
		return nil, err
	}
	return approval.NewIssuer(cfg.Approval.Secret)
}

// policyFromConfig maps the workflow section onto the engine policy.
func policyFromConfig(cfg config.Config) workflow.Policy {
	policy := workflow.DefaultPolicy()
	policy.ErrorBudget = cfg.Workflow.ErrorBudget
	policy.MatchThreshold = cfg.Matching.Threshold
	policy.SubmitAttempts = cfg.Workflow.SubmitAttempts
	if cfg.Workflow.ProviderTimeout > 0 {
		policy.Provider.Timeout = cfg.Workflow.ProviderTimeout
	}
	return policy
}

func buildSources(ctx context.Context, cfg config.Config) ([]providers.Scraper, error) {
	var sources []providers.Scraper
	opts := fetch.DefaultOptions()
	for _, board := range cfg.Sources.Boards {
		src, err := scraping.NewBoardSource(board, opts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if cfg.Sources.Search != nil {
		src, err := scraping.NewSearchSource(ctx, *cfg.Sources.Search)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no job sources configured: add sources.boards or sources.search")
	}
	return sources, nil
}

func buildScorer(cfg config.Config, client llm.Client) providers.Scorer {
	if cfg.Matching.Scorer == config.ScorerKeyword {
		return &matching.KeywordScorer{Excluded: cfg.Matching.Excluded}
	}
	return matching.NewLLMScorer(client)
}

func buildNotifier(cfg config.Config, issuer *approval.Issuer) (providers.Notifier, error) {
	if cfg.Approval.WebhookURL == "" {
		return &notify.LogNotifier{BaseURL: cfg.Approval.BaseURL, Issuer: issuer, Logger: log.Default()}, nil
	}
	return notify.NewWebhookNotifier(cfg.Approval.WebhookURL, cfg.Approval.BaseURL, issuer)
}

// runtime is everything a command needs to drive workflows.
type runtime struct {
	cfg     config.Config
	stores  *stores
	issuer  *approval.Issuer
	engine  *workflow.Engine
	printer *observability.Printer
	llm     llm.Client
}

// newRuntime wires stores, providers and the engine.
func newRuntime(ctx context.Context, cfg config.Config, requireDB bool) (*runtime, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required (set it in the environment or api_key in the config)")
	}

	issuer, err := newIssuer(cfg)
	if err != nil {
		return nil, err
	}
	sources, err := buildSources(ctx, cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg, issuer)
	if err != nil {
		return nil, err
	}
	submitter, err := submit.NewWebhookSubmitter(cfg.Submit.Endpoint, cfg.Submit.Applicant)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(ctx, &cfg.LLM, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	st, err := openStores(ctx, cfg, requireDB)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	printer := observability.NewPrinter(os.Stdout)
	engine, err := workflow.New(st.workflows, st.learning, providers.Set{
		Sources:   sources,
		Scorer:    buildScorer(cfg, client),
		Tailor:    tailoring.NewLLMTailor(client),
		Notifier:  notifier,
		Submitter: submitter,
	}, workflow.Options{
		Policy:       policyFromConfig(cfg),
		OnTransition: printer.PrintTransition,
	})
	if err != nil {
		st.Close()
		_ = client.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, stores: st, issuer: issuer, engine: engine, printer: printer, llm: client}, nil
}

func (r *runtime) Close() {
	r.stores.Close()
	if r.llm != nil {
		_ = r.llm.Close()
	}
}
