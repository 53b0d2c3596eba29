// Package scraping implements job sources: HTML job boards and web search.
package scraping

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/fetch"
	"github.com/jonathan/job-agent/internal/types"
)

// Selectors locate posting fields inside a listing page. Item is required;
// the rest are evaluated relative to each item.
type Selectors struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Salary      string `yaml:"salary"`
	JobType     string `yaml:"job_type"`
	// IDAttr names an attribute on the item holding the board's posting id.
	IDAttr string `yaml:"id_attr"`
}

// BoardConfig describes one HTML job board.
type BoardConfig struct {
	Name string `yaml:"name"`
	// URL may contain {query} and {location}, replaced by the escaped preferences.
	URL       string    `yaml:"url"`
	Selectors Selectors `yaml:"selectors"`
	// FetchDetails loads each posting page when the listing carries no description.
	FetchDetails bool `yaml:"fetch_details"`
	// Browser enables headless rendering for listings that arrive empty over HTTP.
	Browser bool `yaml:"browser"`
	MaxJobs int  `yaml:"max_jobs"`
}

// BoardSource scrapes a listing page with CSS selectors.
type BoardSource struct {
	cfg    BoardConfig
	opts   *fetch.Options
	render fetch.Renderer
}

// NewBoardSource validates cfg and creates a source.
func NewBoardSource(cfg BoardConfig, opts *fetch.Options) (*BoardSource, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("board name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("board %s: url is required", cfg.Name)
	}
	if cfg.Selectors.Item == "" || cfg.Selectors.Title == "" {
		return nil, fmt.Errorf("board %s: item and title selectors are required", cfg.Name)
	}
	if opts == nil {
		opts = fetch.DefaultOptions()
	}
	s := &BoardSource{cfg: cfg, opts: opts}
	if cfg.Browser {
		s.render = fetch.WithBrowser
	}
	return s, nil
}

// Name implements providers.Scraper.
func (s *BoardSource) Name() string {
	return s.cfg.Name
}

// Scrape fetches the listing page and extracts every item.
func (s *BoardSource) Scrape(ctx context.Context, prefs types.Preferences) ([]types.JobPosting, error) {
	listURL := s.listingURL(prefs)
	page, err := fetch.Render(ctx, listURL, s.opts, s.render)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", listURL, err)
	}
	base, _ := url.Parse(listURL)

	var jobs []types.JobPosting
	doc.Find(s.cfg.Selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if job, ok := s.extract(item, base); ok {
			jobs = append(jobs, job)
		}
		return s.cfg.MaxJobs <= 0 || len(jobs) < s.cfg.MaxJobs
	})

	if s.cfg.FetchDetails {
		s.fillDescriptions(ctx, jobs)
	}
	log.Printf("[SCRAPE] %s: %d postings from %s", s.cfg.Name, len(jobs), listURL)
	return jobs, nil
}

func (s *BoardSource) listingURL(prefs types.Preferences) string {
	r := strings.NewReplacer(
		"{query}", url.QueryEscape(strings.Join(prefs.Keywords, " ")),
		"{location}", url.QueryEscape(prefs.Location),
	)
	return r.Replace(s.cfg.URL)
}

func (s *BoardSource) extract(item *goquery.Selection, base *url.URL) (types.JobPosting, bool) {
	sel := s.cfg.Selectors
	title := text(item, sel.Title)
	if title == "" {
		return types.JobPosting{}, false
	}

	job := types.JobPosting{
		Source:      s.cfg.Name,
		Title:       title,
		Company:     text(item, sel.Company),
		Location:    text(item, sel.Location),
		Description: text(item, sel.Description),
		JobType:     normalizeJobType(text(item, sel.JobType)),
	}
	job.SalaryMin, job.SalaryMax = ParseSalary(text(item, sel.Salary))

	if sel.Link != "" {
		link := item.Find(sel.Link).First()
		if href, ok := link.Attr("href"); ok {
			job.URL = resolve(base, href)
		}
	} else if href, ok := item.Attr("href"); ok {
		job.URL = resolve(base, href)
	}

	if sel.IDAttr != "" {
		job.ExternalID = strings.TrimSpace(item.AttrOr(sel.IDAttr, ""))
	}
	if job.ExternalID == "" {
		job.ExternalID = derivedID(job)
	}
	return job, true
}

// fillDescriptions fetches posting pages for jobs without a description.
// Failures leave the description empty.
func (s *BoardSource) fillDescriptions(ctx context.Context, jobs []types.JobPosting) {
	for i := range jobs {
		if jobs[i].Description != "" || jobs[i].URL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		page, err := fetch.URL(ctx, jobs[i].URL, s.opts)
		if err != nil {
			log.Printf("[SCRAPE] %s: detail page %s: %v", s.cfg.Name, jobs[i].URL, err)
			continue
		}
		desc, err := fetch.PostingText(jobs[i].URL, page.HTML)
		if err != nil {
			continue
		}
		jobs[i].Description = desc
	}
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return fetch.CleanWhitespace(item.Find(selector).First().Text())
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// derivedID builds a stable id from the posting link, or from title and company when
// there is no link.
func derivedID(job types.JobPosting) string {
	if job.URL != "" {
		if u, err := url.Parse(job.URL); err == nil {
			segs := strings.Split(strings.Trim(u.Path, "/"), "/")
			if last := segs[len(segs)-1]; last != "" && strings.ContainsAny(last, "0123456789") {
				return last
			}
		}
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(job.URL)).String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(job.Title+"|"+job.Company))).String()
}

var salaryRe = regexp.MustCompile(`(?i)\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?`)

// ParseSalary reads "$120,000 - $150,000", "$120k-150k" or "90000" into a range.
// A single figure sets both ends. Unparseable text yields zeros.
func ParseSalary(s string) (int, int) {
	matches := salaryRe.FindAllStringSubmatch(s, 2)
	var vals []int
	for _, m := range matches {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			f *= 1000
		}
		vals = append(vals, int(f))
	}
	switch len(vals) {
	case 0:
		return 0, 0
	case 1:
		return vals[0], vals[0]
	default:
		if vals[0] > vals[1] {
			return vals[1], vals[0]
		}
		return vals[0], vals[1]
	}
}

func normalizeJobType(s string) string {
	s = strings.ToLower(s)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "intern"):
		return "internship"
	case strings.Contains(s, "contract"):
		return "contract"
	case strings.Contains(s, "part"):
		return "part-time"
	case strings.Contains(s, "remote"):
		return "remote"
	case strings.Contains(s, "full"):
		return "full-time"
	default:
		return s
	}
}
