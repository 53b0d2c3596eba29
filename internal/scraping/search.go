package scraping

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/jonathan/job-agent/internal/types"
)

// SearchConfig configures a web search job source.
type SearchConfig struct {
	Name     string `yaml:"name"`
	APIKey   string `yaml:"-"`
	EngineID string `yaml:"engine_id"`
	// Sites restricts results to these hosts, e.g. boards.greenhouse.io.
	Sites   []string `yaml:"sites"`
	Results int64    `yaml:"results"`
	// Endpoint overrides the API base URL.
	Endpoint string `yaml:"endpoint"`
}

// SearchSource finds postings through Google Programmable Search.
type SearchSource struct {
	name  string
	svc   *customsearch.Service
	cx    string
	sites []string
	num   int64
}

// NewSearchSource creates a search source.
func NewSearchSource(ctx context.Context, cfg SearchConfig) (*SearchSource, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("search source requires an API key and engine id")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "search"
	}
	num := cfg.Results
	if num <= 0 || num > 10 {
		num = 10
	}
	return &SearchSource{name: name, svc: svc, cx: cfg.EngineID, sites: cfg.Sites, num: num}, nil
}

// Name implements providers.Scraper.
func (s *SearchSource) Name() string {
	return s.name
}

// Scrape runs one query built from the preferences and maps results to postings.
func (s *SearchSource) Scrape(ctx context.Context, prefs types.Preferences) ([]types.JobPosting, error) {
	query := BuildQuery(prefs, s.sites)
	resp, err := s.svc.Cse.List().Cx(s.cx).Q(query).Num(s.num).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	jobs := make([]types.JobPosting, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		title, company := splitResultTitle(item.Title)
		jobs = append(jobs, types.JobPosting{
			Source:      s.name,
			ExternalID:  uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.Link)).String(),
			Title:       title,
			Company:     company,
			Description: strings.TrimSpace(item.Snippet),
			URL:         item.Link,
		})
	}
	return jobs, nil
}

// BuildQuery turns preferences into a search query.
func BuildQuery(prefs types.Preferences, sites []string) string {
	parts := []string{strings.Join(prefs.Keywords, " "), "jobs"}
	if prefs.Location != "" {
		parts = append(parts, prefs.Location)
	}
	if prefs.JobType != "" {
		parts = append(parts, prefs.JobType)
	}
	if len(sites) > 0 {
		restrict := make([]string, len(sites))
		for i, site := range sites {
			restrict[i] = "site:" + site
		}
		parts = append(parts, "("+strings.Join(restrict, " OR ")+")")
	}
	return strings.Join(parts, " ")
}

// splitResultTitle splits "Senior Engineer - Acme" or "Job Application for X at Acme".
func splitResultTitle(title string) (string, string) {
	title = strings.TrimSpace(strings.TrimPrefix(title, "Job Application for "))
	for _, sep := range []string{" at ", " - ", " | "} {
		if i := strings.LastIndex(title, sep); i > 0 {
			return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+len(sep):])
		}
	}
	return title, ""
}
