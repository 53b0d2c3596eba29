// Package matching provides Scorer implementations that rate job postings
// against a user's preferences.
package matching

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// Component weights of the heuristic score. They sum to 1.
const (
	weightTitle    = 0.30
	weightKeywords = 0.35
	weightLocation = 0.15
	weightSalary   = 0.10
	weightJobType  = 0.10
)

// KeywordScorer is a deterministic heuristic scorer. Keyword hits are
// weighted by learned keyword weights.
type KeywordScorer struct {
	// Excluded keywords force a score of 0 when present in the posting.
	Excluded []string
}

var _ providers.Scorer = (*KeywordScorer)(nil)

// Score implements providers.Scorer.
func (k *KeywordScorer) Score(_ context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*providers.Score, error) {
	text := strings.ToLower(job.Title + " " + job.Description)
	for _, ex := range k.Excluded {
		if ex = strings.ToLower(strings.TrimSpace(ex)); ex != "" && strings.Contains(text, ex) {
			return &providers.Score{Value: 0, Rationale: fmt.Sprintf("posting mentions excluded keyword %q", ex)}, nil
		}
	}

	title := titleScore(job.Title, prefs.Keywords)
	keywords, hits := keywordScore(text, append(append([]string{}, prefs.Keywords...), prefs.Skills...), insights)
	location := locationScore(job.Location, prefs.Location)
	salary := salaryScore(job.SalaryMin, job.SalaryMax, prefs.SalaryMin)
	jobType := jobTypeScore(job.JobType, prefs.JobType)

	total := title*weightTitle + keywords*weightKeywords + location*weightLocation + salary*weightSalary + jobType*weightJobType
	total = math.Round(total*100) / 100

	rationale := fmt.Sprintf("title %.2f, keywords %.2f (%s), location %.2f, salary %.2f, job type %.2f",
		title, keywords, strings.Join(hits, ", "), location, salary, jobType)
	return &providers.Score{Value: total, Rationale: rationale}, nil
}

func titleScore(title string, keywords []string) float64 {
	title = strings.ToLower(title)
	if title == "" || len(keywords) == 0 {
		return 0
	}
	words := strings.Fields(title)
	best := 0.0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) {
			return 1
		}
		target := strings.Fields(kw)
		overlap := 0
		for _, tw := range target {
			for _, w := range words {
				if w == tw {
					overlap++
					break
				}
			}
		}
		best = math.Max(best, float64(overlap)/float64(len(target)))
	}
	return best
}

// keywordScore is the weighted share of keywords found in text.
func keywordScore(text string, keywords []string, insights types.Insights) (float64, []string) {
	var total, found float64
	var hits []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		w := insights.KeywordWeight(kw)
		total += w
		if strings.Contains(text, kw) {
			found += w
			hits = append(hits, kw)
		}
	}
	if total == 0 {
		return 1, nil
	}
	return found / total, hits
}

func locationScore(jobLocation, preferred string) float64 {
	if preferred == "" {
		return 1
	}
	if jobLocation == "" {
		return 0.5
	}
	loc := strings.ToLower(jobLocation)
	pref := strings.ToLower(preferred)
	if pref == "remote" || pref == "anywhere" {
		if strings.Contains(loc, "remote") || strings.Contains(loc, "work from home") {
			return 1
		}
	}
	if strings.Contains(loc, pref) {
		return 1
	}
	return 0.3
}

func salaryScore(jobMin, jobMax, floor int) float64 {
	if floor <= 0 {
		return 1
	}
	salary := jobMax
	if salary == 0 {
		salary = jobMin
	}
	switch {
	case salary == 0:
		return 0.5
	case salary >= floor:
		return 1
	case float64(salary) >= float64(floor)*0.8:
		return 0.7
	case float64(salary) >= float64(floor)*0.6:
		return 0.4
	default:
		return 0
	}
}

func jobTypeScore(jobType, preferred string) float64 {
	if preferred == "" {
		return 1
	}
	if jobType == "" {
		return 0.5
	}
	if strings.EqualFold(jobType, preferred) {
		return 1
	}
	return 0.3
}
