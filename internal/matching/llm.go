package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/job-agent/internal/llm"
	"github.com/jonathan/job-agent/internal/prompts"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/types"
)

// maxDescriptionChars bounds the posting text sent to the model.
const maxDescriptionChars = 4000

type matchResponse struct {
	Score     float64  `json:"score"`
	Reasoning string   `json:"reasoning"`
	RedFlags  []string `json:"red_flags"`
}

// LLMScorer asks a language model to judge fit.
type LLMScorer struct {
	Client llm.Client
	Tier   llm.ModelTier
	// Fallback, when set, scores the job if the model call or its response fails.
	Fallback providers.Scorer
}

var _ providers.Scorer = (*LLMScorer)(nil)

// NewLLMScorer creates a scorer on the lite tier with a keyword fallback.
func NewLLMScorer(client llm.Client) *LLMScorer {
	return &LLMScorer{Client: client, Tier: llm.TierLite, Fallback: &KeywordScorer{}}
}

// Score implements providers.Scorer.
func (s *LLMScorer) Score(ctx context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*providers.Score, error) {
	score, err := s.judge(ctx, job, prefs, insights)
	if err == nil {
		return score, nil
	}
	if s.Fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	fb, fbErr := s.Fallback.Score(ctx, job, prefs, insights)
	if fbErr != nil {
		return nil, err
	}
	fb.Rationale = fmt.Sprintf("heuristic (model unavailable: %v): %s", err, fb.Rationale)
	return fb, nil
}

func (s *LLMScorer) judge(ctx context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*providers.Score, error) {
	prompt, err := buildMatchPrompt(job, prefs, insights)
	if err != nil {
		return nil, err
	}

	tier := s.Tier
	if tier == "" {
		tier = llm.TierLite
	}
	raw, err := s.Client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return nil, &providers.ProviderError{Provider: "scorer", Message: "LLM generation failed", Cause: err}
	}
	raw = llm.CleanJSONBlock(raw)

	if err := schemas.Validate(schemas.MatchResponse, raw); err != nil {
		return nil, &providers.ProviderError{Provider: "scorer", Message: "malformed model response", Cause: err}
	}
	var resp matchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &providers.ProviderError{Provider: "scorer", Message: "failed to parse model response", Cause: err}
	}

	rationale := strings.TrimSpace(resp.Reasoning)
	if len(resp.RedFlags) > 0 {
		rationale += " Red flags: " + strings.Join(resp.RedFlags, "; ") + "."
	}
	return &providers.Score{Value: resp.Score, Rationale: rationale}, nil
}

func buildMatchPrompt(job types.JobPosting, prefs types.Preferences, insights types.Insights) (string, error) {
	return prompts.Render("matching.json", "score-job", map[string]string{
		"Keywords":        orNotSpecified(strings.Join(prefs.Keywords, ", ")),
		"SalaryMin":       money(prefs.SalaryMin),
		"Location":        orNotSpecified(prefs.Location),
		"ExperienceLevel": orNotSpecified(prefs.ExperienceLevel),
		"JobType":         orNotSpecified(prefs.JobType),
		"Skills":          orNotSpecified(strings.Join(prefs.Skills, ", ")),
		"Emphasis":        orNotSpecified(strings.Join(insights.TopKeywords(5), ", ")),
		"Title":           job.Title,
		"Company":         orNotSpecified(job.Company),
		"JobLocation":     orNotSpecified(job.Location),
		"Salary":          salaryRange(job.SalaryMin, job.SalaryMax),
		"PostingType":     orNotSpecified(job.JobType),
		"Description":     truncate(job.Description, maxDescriptionChars),
	})
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func money(v int) string {
	if v <= 0 {
		return "Not specified"
	}
	s := strconv.Itoa(v)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return "$" + string(out)
}

func salaryRange(lo, hi int) string {
	switch {
	case lo > 0 && hi > 0:
		return money(lo) + " - " + money(hi)
	case lo > 0:
		return money(lo) + "+"
	case hi > 0:
		return "up to " + money(hi)
	}
	return "Not specified"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
