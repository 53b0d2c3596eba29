// Package config loads the job-agent configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/job-agent/internal/llm"
	"github.com/jonathan/job-agent/internal/scraping"
	"github.com/jonathan/job-agent/internal/types"
)

// Scorer names.
const (
	ScorerLLM     = "llm"
	ScorerKeyword = "keyword"
)

// Config is the full agent configuration. Secrets are normally supplied through
// the environment (see ApplyEnv) rather than the file.
type Config struct {
	UserID      string            `yaml:"user_id"`
	Resume      string            `yaml:"resume"` // path to the base resume
	Preferences types.Preferences `yaml:"preferences"`

	DatabaseURL string     `yaml:"database_url"`
	APIKey      string     `yaml:"api_key"` // Gemini API key
	LLM         llm.Config `yaml:"llm"`

	Sources  SourcesConfig  `yaml:"sources"`
	Matching MatchingConfig `yaml:"matching"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Approval ApprovalConfig `yaml:"approval"`
	Submit   SubmitConfig   `yaml:"submit"`
	Server   ServerConfig   `yaml:"server"`
}

// SourcesConfig lists the job sources in the order their results are merged.
type SourcesConfig struct {
	Boards []scraping.BoardConfig  `yaml:"boards"`
	Search *scraping.SearchConfig `yaml:"search"`
}

// MatchingConfig selects the scorer.
type MatchingConfig struct {
	Scorer    string   `yaml:"scorer"`
	Threshold float64  `yaml:"threshold"`
	Excluded  []string `yaml:"excluded_keywords"`
}

// WorkflowConfig tunes the engine.
type WorkflowConfig struct {
	ErrorBudget     int           `yaml:"error_budget"`
	SubmitAttempts  int           `yaml:"submit_attempts"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// SubmitConfig configures the application endpoint.
type SubmitConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Applicant string `yaml:"applicant"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// APIToken guards the operator endpoints. Empty leaves them open.
	APIToken string `yaml:"-"`
}

// Default returns the configuration used for anything the file leaves unset.
func Default() Config {
	return Config{
		LLM:      *llm.DefaultConfig(),
		Matching: MatchingConfig{Scorer: ScorerLLM, Threshold: 0.70},
		Workflow: WorkflowConfig{
			ErrorBudget:     3,
			SubmitAttempts:  3,
			ProviderTimeout: 60 * time.Second,
			SweepInterval:   5 * time.Minute,
		},
		Approval: ApprovalConfig{BaseURL: "http://localhost:8080"},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and source definitions. Required fields are
// checked by the commands that need them.
func (c *Config) Validate() error {
	switch c.Matching.Scorer {
	case "", ScorerLLM, ScorerKeyword:
	default:
		return fmt.Errorf("config error: unknown scorer %q", c.Matching.Scorer)
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("config error: 'matching.threshold' must be within [0,1]")
	}
	if c.Workflow.ErrorBudget < 0 {
		return fmt.Errorf("config error: 'workflow.error_budget' must be non-negative")
	}
	if c.Workflow.SubmitAttempts < 0 {
		return fmt.Errorf("config error: 'workflow.submit_attempts' must be non-negative")
	}
	if c.Workflow.ProviderTimeout < 0 || c.Workflow.SweepInterval < 0 {
		return fmt.Errorf("config error: durations must be non-negative")
	}
	for tier := range c.LLM.Models {
		if _, err := llm.ParseTier(string(tier)); err != nil {
			return fmt.Errorf("config error: 'llm.models': %w", err)
		}
	}

	seen := make(map[string]bool)
	for i, b := range c.Sources.Boards {
		if b.Name == "" {
			return fmt.Errorf("config error: board %d has no name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("config error: duplicate source name %q", b.Name)
		}
		seen[b.Name] = true
	}
	if s := c.Sources.Search; s != nil {
		name := s.Name
		if name == "" {
			name = "search"
		}
		if seen[name] {
			return fmt.Errorf("config error: duplicate source name %q", name)
		}
	}

	if c.Resume != "" {
		if _, err := os.Stat(c.Resume); os.IsNotExist(err) {
			return fmt.Errorf("config error: resume file not found: %s", c.Resume)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.UserID == "" {
		result.UserID = defaults.UserID
	}
	if result.Resume == "" {
		result.Resume = defaults.Resume
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}

	if result.LLM.Provider == "" {
		result.LLM.Provider = defaults.LLM.Provider
	}
	if len(result.LLM.Models) == 0 {
		result.LLM.Models = defaults.LLM.Models
	}
	if result.LLM.Temperature == 0 {
		result.LLM.Temperature = defaults.LLM.Temperature
	}

	if result.Matching.Scorer == "" {
		result.Matching.Scorer = defaults.Matching.Scorer
	}
	if result.Matching.Threshold == 0 {
		result.Matching.Threshold = defaults.Matching.Threshold
	}

	if result.Workflow.ErrorBudget == 0 {
		result.Workflow.ErrorBudget = defaults.Workflow.ErrorBudget
	}
	if result.Workflow.SubmitAttempts == 0 {
		result.Workflow.SubmitAttempts = defaults.Workflow.SubmitAttempts
	}
	if result.Workflow.ProviderTimeout == 0 {
		result.Workflow.ProviderTimeout = defaults.Workflow.ProviderTimeout
	}
	if result.Workflow.SweepInterval == 0 {
		result.Workflow.SweepInterval = defaults.Workflow.SweepInterval
	}

	if result.Approval.BaseURL == "" {
		result.Approval.BaseURL = defaults.Approval.BaseURL
	}
	if result.Approval.WebhookURL == "" {
		result.Approval.WebhookURL = defaults.Approval.WebhookURL
	}
	if result.Submit.Endpoint == "" {
		result.Submit.Endpoint = defaults.Submit.Endpoint
	}
	if result.Server.Addr == "" {
		result.Server.Addr = defaults.Server.Addr
	}

	// bools (Preferences.Paused, BoardConfig.Browser) cannot be told apart from unset and are not merged
	return result
}

// ApplyEnv overrides fields with environment variables that are set.
func (c *Config) ApplyEnv() {
	setIf := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIf(&c.DatabaseURL, "DATABASE_URL")
	setIf(&c.APIKey, "GEMINI_API_KEY")
	setIf(&c.Approval.Secret, "APPROVAL_SECRET")
	setIf(&c.Approval.BaseURL, "APPROVAL_BASE_URL")
	setIf(&c.Approval.WebhookURL, "APPROVAL_WEBHOOK_URL")
	setIf(&c.Submit.Endpoint, "SUBMIT_ENDPOINT")
	setIf(&c.Server.APIToken, "JOB_AGENT_API_TOKEN")

	if c.Sources.Search == nil && os.Getenv("GOOGLE_CSE_ID") != "" {
		c.Sources.Search = &scraping.SearchConfig{}
	}
	if s := c.Sources.Search; s != nil {
		setIf(&s.EngineID, "GOOGLE_CSE_ID")
		if s.APIKey == "" {
			s.APIKey = c.APIKey
		}
		setIf(&s.APIKey, "GOOGLE_SEARCH_API_KEY")
	}
}
